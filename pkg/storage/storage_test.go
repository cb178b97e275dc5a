// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoragePutGetDelete(t *testing.T) {
	require := require.New(t)

	s := NewMemory()
	defer s.Close()

	require.NoError(s.Put([]byte("view/abc"), []byte(`{"name":"weekly"}`)))

	got, err := s.Get([]byte("view/abc"))
	require.NoError(err)
	require.Equal([]byte(`{"name":"weekly"}`), got)

	ok, err := s.Has([]byte("view/abc"))
	require.NoError(err)
	require.True(ok)

	require.NoError(s.Delete([]byte("view/abc")))

	_, err = s.Get([]byte("view/abc"))
	require.Error(err)
	require.True(IsNotFound(err))
}

func TestStorageGetMissing(t *testing.T) {
	require := require.New(t)

	s := NewMemory()
	defer s.Close()

	_, err := s.Get([]byte("view/missing"))
	require.Error(err)
	require.True(IsNotFound(err))

	ok, err := s.Has([]byte("view/missing"))
	require.NoError(err)
	require.False(ok)
}

func TestStorageIteratorPrefix(t *testing.T) {
	require := require.New(t)

	s := NewMemory()
	defer s.Close()

	require.NoError(s.Put([]byte("view/a"), []byte("1")))
	require.NoError(s.Put([]byte("view/b"), []byte("2")))
	require.NoError(s.Put([]byte("other/c"), []byte("3")))

	it := s.NewIteratorWithPrefix([]byte("view/"))
	defer it.Release()

	keys := make([]string, 0, 2)
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(it.Error())
	require.Equal([]string{"view/a", "view/b"}, keys)
}
