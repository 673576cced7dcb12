package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"vidhook/internal/adapters/storage/gdrive"
	"vidhook/internal/adapters/storage/localfs"
	"vidhook/internal/config"
)

// OutputDir is where the localfs provider keeps published renders.
func OutputDir(storageRoot string) string {
	return filepath.Join(storageRoot, "output")
}

// NewProvider builds the output provider selected by cfg.Storage.Provider.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.Storage.Provider {
	case config.ProviderLocalFS, "":
		return localfs.New(OutputDir(cfg.StorageRoot))

	case config.ProviderGDrive:
		return newGDriveProvider(ctx, cfg.Storage.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func newGDriveProvider(ctx context.Context, g config.GDriveConfig) (Provider, error) {
	conf := &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: g.RefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, g.FolderID), nil
}
