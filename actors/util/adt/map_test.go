package adt_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestlabs/vesting-actors/actors/util/adt"
	"github.com/vestlabs/vesting-actors/support/ipld"
	tutil "github.com/vestlabs/vesting-actors/support/testing"
)

func TestMapPutGet(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	m, err := adt.MakeEmptyMap(store)
	require.NoError(t, err)

	key := abi.AddrKey(tutil.NewIDAddr(t, 101))
	value := abi.NewTokenAmount(42)

	found, err := m.Get(key, &value)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Put(key, &value))

	var out abi.TokenAmount
	found, err = m.Get(key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value, out)

	// Overwrite.
	value2 := abi.NewTokenAmount(88)
	require.NoError(t, m.Put(key, &value2))
	found, err = m.Get(key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value2, out)
}

func TestMapDelete(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	m, err := adt.MakeEmptyMap(store)
	require.NoError(t, err)

	key := abi.AddrKey(tutil.NewIDAddr(t, 101))
	value := abi.NewTokenAmount(42)
	require.NoError(t, m.Put(key, &value))

	has, err := m.Has(key)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, m.Delete(key))

	has, err = m.Has(key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMapForEach(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	m, err := adt.MakeEmptyMap(store)
	require.NoError(t, err)

	addrs := map[string]abi.TokenAmount{}
	for i := uint64(0); i < 5; i++ {
		a := tutil.NewIDAddr(t, 100+i)
		v := abi.NewTokenAmount(int64(i))
		require.NoError(t, m.Put(abi.AddrKey(a), &v))
		addrs[string(abi.AddrKey(a).Key())] = v
	}

	seen := 0
	var out abi.TokenAmount
	err = m.ForEach(&out, func(k string) error {
		expected, ok := addrs[k]
		require.True(t, ok)
		assert.Equal(t, expected, out)
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)

	keys, err := m.CollectKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func TestMapRootStability(t *testing.T) {
	store := ipld.NewADTStore(context.Background())
	m1, err := adt.MakeEmptyMap(store)
	require.NoError(t, err)
	m2, err := adt.MakeEmptyMap(store)
	require.NoError(t, err)

	// Same contents, same root.
	assert.Equal(t, m1.Root(), m2.Root())

	key := abi.AddrKey(tutil.NewIDAddr(t, 101))
	value := big.Zero()
	require.NoError(t, m1.Put(key, &value))
	assert.NotEqual(t, m1.Root(), m2.Root())

	// Reload from the root and read back.
	m3 := adt.AsMap(store, m1.Root())
	var out abi.TokenAmount
	found, err := m3.Get(key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value, out)
}
