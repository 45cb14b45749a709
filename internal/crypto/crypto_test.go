package crypto

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	// Larger than one chunk to exercise the counter-based nonces.
	plaintext := bytes.Repeat([]byte("logistics snapshot data "), 8000)

	er, header, err := NewEncryptReader(bytes.NewReader(plaintext), "hunter2")
	require.NoError(t, err)

	var stream bytes.Buffer
	require.NoError(t, WriteHeader(&stream, header))
	_, err = io.Copy(&stream, er)
	require.NoError(t, err)

	assert.True(t, IsEncrypted(stream.Bytes()))
	assert.NotContains(t, stream.String(), "logistics snapshot data")

	readHeader, err := ReadHeader(&stream)
	require.NoError(t, err)
	assert.Equal(t, header.Salt, readHeader.Salt)
	assert.Equal(t, header.Nonce, readHeader.Nonce)

	dr, err := NewDecryptReader(&stream, "hunter2", readHeader)
	require.NoError(t, err)

	decrypted, err := io.ReadAll(dr)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptMisalignedReads(t *testing.T) {
	// Sealed data arrives with arbitrary read boundaries in practice: a
	// header peek split mid-chunk, or a network reader returning short
	// reads. Decryption must reassemble whole chunks itself.
	plaintext := bytes.Repeat([]byte("fuel report row;"), 10000)

	er, header, err := NewEncryptReader(bytes.NewReader(plaintext), "hunter2")
	require.NoError(t, err)
	sealed, err := io.ReadAll(er)
	require.NoError(t, err)

	t.Run("split mid-chunk", func(t *testing.T) {
		// A prefix shorter than the first sealed chunk, then the rest.
		source := io.MultiReader(
			bytes.NewReader(sealed[:459]),
			bytes.NewReader(sealed[459:]),
		)

		dr, err := NewDecryptReader(source, "hunter2", header)
		require.NoError(t, err)

		decrypted, err := io.ReadAll(dr)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("one byte at a time", func(t *testing.T) {
		dr, err := NewDecryptReader(iotest.OneByteReader(bytes.NewReader(sealed)), "hunter2", header)
		require.NoError(t, err)

		decrypted, err := io.ReadAll(dr)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})
}

func TestEncryptFragmentedSource(t *testing.T) {
	// The plaintext source may also return short reads; sealed chunks
	// must stay full-size so the decryptor can rely on their framing.
	plaintext := bytes.Repeat([]byte("odometer entry "), 9000)

	er, header, err := NewEncryptReader(iotest.OneByteReader(bytes.NewReader(plaintext)), "hunter2")
	require.NoError(t, err)
	sealed, err := io.ReadAll(er)
	require.NoError(t, err)

	dr, err := NewDecryptReader(bytes.NewReader(sealed), "hunter2", header)
	require.NoError(t, err)

	decrypted, err := io.ReadAll(dr)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongPassword(t *testing.T) {
	plaintext := []byte("db dump")

	er, header, err := NewEncryptReader(bytes.NewReader(plaintext), "correct")
	require.NoError(t, err)

	sealed, err := io.ReadAll(er)
	require.NoError(t, err)

	dr, err := NewDecryptReader(bytes.NewReader(sealed), "wrong", header)
	require.NoError(t, err)

	_, err = io.ReadAll(dr)
	assert.Error(t, err)
}

func TestReadHeaderRejectsPlainData(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("definitely not encrypted data")))
	assert.Error(t, err)
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted([]byte("short")))
	assert.False(t, IsEncrypted([]byte("plain tar.gz bytes")))
	assert.True(t, IsEncrypted([]byte("BCTL-ENC\x01rest")))
}
