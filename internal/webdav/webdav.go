// Package webdav pushes completed downloads to a WebDAV drive.
package webdav

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/studio-b12/gowebdav"
)

// Uploader wraps a WebDAV client rooted at a remote base directory.
type Uploader struct {
	client *gowebdav.Client
	base   string
	log    *log.Logger
}

// New builds an uploader for the drive at uri with basic auth.
// base is the remote directory all uploads land under.
func New(uri, user, password, base string, logger *log.Logger) *Uploader {
	return &Uploader{
		client: gowebdav.NewClient(uri, user, password),
		base:   base,
		log:    logger,
	}
}

// Check verifies the drive is reachable and credentials work.
func (u *Uploader) Check() error {
	if err := u.client.Connect(); err != nil {
		return fmt.Errorf("webdav: connect: %w", err)
	}
	return nil
}

// Upload streams the local file to base/subdir/ and returns the
// remote path. The remote directory is created when missing; an
// already-existing directory is not an error.
func (u *Uploader) Upload(localPath, subdir string) (string, error) {
	remoteDir := u.base
	if subdir != "" {
		remoteDir = path.Join(u.base, subdir)
	}
	if err := u.client.MkdirAll(remoteDir, 0o755); err != nil {
		return "", fmt.Errorf("webdav: mkdir %s: %w", remoteDir, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("webdav: open %s: %w", localPath, err)
	}
	defer f.Close()

	remotePath := path.Join(remoteDir, filepath.Base(localPath))
	if err := u.client.WriteStream(remotePath, f, 0o644); err != nil {
		return "", fmt.Errorf("webdav: put %s: %w", remotePath, err)
	}
	u.log.Printf("webdav: uploaded local=%s remote=%s", localPath, remotePath)
	return remotePath, nil
}

// Exists reports whether remotePath is present on the drive. Upload
// sweeps call this after a write before trusting the upload.
func (u *Uploader) Exists(remotePath string) bool {
	_, err := u.client.Stat(remotePath)
	return err == nil
}
