package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

// RequiredLayout lists the entries a usable bundle must contain at its root.
var RequiredLayout = []string{"templates", "app.py"}

// ArtifactSource names the repository archives are fetched from.
type ArtifactSource struct {
	RepoURL       string
	RepoName      string
	DefaultBranch string
}

// ArtifactService downloads the application bundle and replaces the install
// directory with it. The previous contents are never merged or backed up.
type ArtifactService struct {
	source     ArtifactSource
	downloader domain.Downloader
	logger     *slog.Logger
}

func NewArtifactService(source ArtifactSource, downloader domain.Downloader, logger *slog.Logger) *ArtifactService {
	return &ArtifactService{
		source:     source,
		downloader: downloader,
		logger:     logger,
	}
}

// ResolveURL maps a version specifier to its archive URL. "latest" tracks the
// default branch; any other value is used verbatim as a tag name.
func (s *ArtifactService) ResolveURL(spec string) string {
	if spec == "" || spec == domain.LatestVersion {
		return fmt.Sprintf("%s/archive/refs/heads/%s.zip", s.source.RepoURL, s.source.DefaultBranch)
	}
	return fmt.Sprintf("%s/archive/refs/tags/%s.zip", s.source.RepoURL, spec)
}

// Fetch downloads and extracts the bundle for spec into installDir.
func (s *ArtifactService) Fetch(ctx context.Context, spec, installDir string) (domain.Artifact, error) {
	art := domain.Artifact{VersionSpec: spec, ResolvedURL: s.ResolveURL(spec)}

	if spec != domain.LatestVersion {
		if _, err := version.NewVersion(spec); err != nil {
			s.logger.Warn("Version is not a semantic version, using it as a tag name",
				slog.String("version", spec))
		}
	}

	parent := filepath.Dir(installDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return art, fmt.Errorf("%w: %v", domain.ErrArtifactLayout, err)
	}
	staging, err := os.MkdirTemp(parent, ".trafficx-stage-")
	if err != nil {
		return art, fmt.Errorf("%w: create staging dir: %v", domain.ErrArtifactLayout, err)
	}
	defer os.RemoveAll(staging)

	s.logger.Info("Downloading release archive",
		slog.String("version", spec),
		slog.String("url", art.ResolvedURL))

	archive := filepath.Join(staging, "bundle.zip")
	if err := s.downloader.Download(ctx, art.ResolvedURL, archive); err != nil {
		return art, fmt.Errorf("%w: %s (version %s): %v", domain.ErrArtifactDownload, art.ResolvedURL, spec, err)
	}

	tree := filepath.Join(staging, "tree")
	if err := extractZip(archive, tree); err != nil {
		return art, fmt.Errorf("%w: %v", domain.ErrArtifactLayout, err)
	}

	top, err := s.topLevelDir(tree)
	if err != nil {
		return art, err
	}

	if err := os.RemoveAll(installDir); err != nil {
		return art, fmt.Errorf("%w: remove previous install: %v", domain.ErrArtifactLayout, err)
	}
	if err := os.Rename(top, installDir); err != nil {
		return art, fmt.Errorf("%w: move bundle into place: %v", domain.ErrArtifactLayout, err)
	}
	art.ExtractedPath = installDir

	if err := ValidateLayout(installDir); err != nil {
		return art, err
	}

	s.logger.Info("Release extracted", slog.String("path", installDir))
	return art, nil
}

// ValidateLayout checks that dir holds a runnable bundle.
func ValidateLayout(dir string) error {
	for _, entry := range RequiredLayout {
		if _, err := os.Stat(filepath.Join(dir, entry)); err != nil {
			return fmt.Errorf("%w: %s missing from %s", domain.ErrArtifactLayout, entry, dir)
		}
	}
	return nil
}

// topLevelDir finds the directory GitHub wraps archives in, e.g. Traffic-X-main.
func (s *ArtifactService) topLevelDir(tree string) (string, error) {
	entries, err := os.ReadDir(tree)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArtifactLayout, err)
	}
	prefix := s.source.RepoName + "-"
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(tree, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no %s* directory in archive", domain.ErrArtifactLayout, prefix)
}

func extractZip(archive, dst string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(dst) + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dst, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
