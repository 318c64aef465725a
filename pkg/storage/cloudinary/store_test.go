package cloudinary

import (
	"context"
	"io"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpload struct {
	uploaded  map[string][]byte
	destroyed []string
}

func (f *fakeUpload) Upload(_ context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	data, _ := io.ReadAll(file.(io.Reader))
	f.uploaded[params.PublicID] = data
	return &uploader.UploadResult{PublicID: params.PublicID}, nil
}

func (f *fakeUpload) Destroy(_ context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyed = append(f.destroyed, params.PublicID)
	return &uploader.DestroyResult{Result: "ok"}, nil
}

type fakeAdmin struct {
	known map[string]bool
}

func (f *fakeAdmin) Asset(_ context.Context, params admin.AssetParams) (*admin.AssetResult, error) {
	if !f.known[params.PublicID] {
		return &admin.AssetResult{Error: api.ErrorResp{Message: "Resource not found"}}, nil
	}
	return &admin.AssetResult{PublicID: params.PublicID}, nil
}

func TestStoreMapsKeysToPublicIDs(t *testing.T) {
	up := &fakeUpload{uploaded: map[string][]byte{}}
	adm := &fakeAdmin{known: map[string]bool{"pawpass/vouchers/qr/CODE": true}}
	store := &Store{upload: up, admin: adm, cloud: "demo", folder: "pawpass"}
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "vouchers/qr/CODE.png", "image/png", []byte("png")))
	assert.Equal(t, []byte("png"), up.uploaded["pawpass/vouchers/qr/CODE"])

	ok, err := store.Exists(ctx, "vouchers/qr/CODE.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "vouchers/qr/OTHER.png")
	require.NoError(t, err)
	assert.False(t, ok)

	url, err := store.URL(ctx, "vouchers/qr/CODE.png")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/pawpass/vouchers/qr/CODE.png", url)

	require.NoError(t, store.Delete(ctx, "vouchers/qr/CODE.png"))
	assert.Equal(t, []string{"pawpass/vouchers/qr/CODE"}, up.destroyed)
}
