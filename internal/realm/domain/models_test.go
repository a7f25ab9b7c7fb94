package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealmIDHelpers(t *testing.T) {
	assert.Equal(t, "shop/fashion-store", ShopRealmID("  Fashion Store "))
	assert.Equal(t, "", ShopRealmID("***"))
	assert.Equal(t, "user/99", UserRealmID(99))
	assert.Equal(t, "shop/a-3", WithSuffix("shop/a", 3))
	assert.Equal(t, "shop/a", WithSuffix("shop/a", 1))

	typ, ok := TypeOf("shop/fashion-store")
	assert.True(t, ok)
	assert.Equal(t, TypeShop, typ)

	_, ok = TypeOf("team/x")
	assert.False(t, ok)
	_, ok = TypeOf("nope")
	assert.False(t, ok)
}
