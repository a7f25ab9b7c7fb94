package authorization

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	membershipdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
)

// RenderMatrix writes the capability table as an aligned text matrix, one row
// per (realm type, subject) and one column per entity type.
func (t Table) RenderMatrix(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"REALM", "SUBJECT"}
	for _, entity := range EntityTypes {
		header = append(header, strings.ToUpper(string(entity)))
	}
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}

	writeRow := func(realmType realmdomain.Type, subject string, grants Grants) error {
		cols := []string{string(realmType), subject}
		for _, entity := range EntityTypes {
			cols = append(cols, grants[entity].Letters())
		}
		_, err := fmt.Fprintln(tw, strings.Join(cols, "\t"))
		return err
	}

	for _, realmType := range []realmdomain.Type{realmdomain.TypeShop, realmdomain.TypeUser} {
		roles := make([]string, 0, len(t.Roles[realmType]))
		for role := range t.Roles[realmType] {
			roles = append(roles, string(role))
		}
		sort.Strings(roles)
		for _, role := range roles {
			if err := writeRow(realmType, roleSubject(membershipdomain.Role(role)), t.Roles[realmType][membershipdomain.Role(role)]); err != nil {
				return err
			}
		}
		if grants, ok := t.Public[realmType]; ok {
			if err := writeRow(realmType, publicSubject, grants); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
