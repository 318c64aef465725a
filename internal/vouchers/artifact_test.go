package vouchers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBlobs struct {
	data    map[string][]byte
	saves   int
	failing bool
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{data: map[string][]byte{}}
}

func (m *memoryBlobs) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryBlobs) Save(_ context.Context, key, _ string, data []byte) error {
	if m.failing {
		return errors.New("bucket unavailable")
	}
	m.saves++
	m.data[key] = data
	return nil
}

func (m *memoryBlobs) URL(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (m *memoryBlobs) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestBuildRendersPNGOnce(t *testing.T) {
	blobs := newMemoryBlobs()
	builder, err := NewArtifactBuilder(blobs, "https://pawpass.example", nil)
	require.NoError(t, err)

	key, err := builder.Build(context.Background(), "ABCDEFGHJKLMNPQR")
	require.NoError(t, err)
	assert.Equal(t, "vouchers/qr/ABCDEFGHJKLMNPQR.png", key)
	require.Contains(t, blobs.data, key)
	assert.Equal(t, []byte("\x89PNG"), blobs.data[key][:4])

	_, err = builder.Build(context.Background(), "ABCDEFGHJKLMNPQR")
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.saves)
}

func TestBuildEncodesRedemptionURL(t *testing.T) {
	blobs := newMemoryBlobs()
	builder, err := NewArtifactBuilder(blobs, "https://pawpass.example", nil)
	require.NoError(t, err)
	var payload string
	builder.encode = func(content string, _ int) ([]byte, error) {
		payload = content
		return []byte("png"), nil
	}

	_, err = builder.Build(context.Background(), "ABCDEFGHJKLMNPQR")
	require.NoError(t, err)
	assert.Equal(t, "https://pawpass.example/voucher/ABCDEFGHJKLMNPQR/redeem", payload)
}

func TestBuildAllToleratesStorageFailure(t *testing.T) {
	blobs := newMemoryBlobs()
	blobs.failing = true
	builder, err := NewArtifactBuilder(blobs, "https://pawpass.example", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, builder.BuildAll(context.Background(), []string{"ABCDEFGHJKLMNPQR", "BCDEFGHJKLMNPQRS"}))

	blobs.failing = false
	url, err := builder.URL(context.Background(), "ABCDEFGHJKLMNPQR")
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/vouchers/qr/ABCDEFGHJKLMNPQR.png", url)
}
