package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

// withStubRelease points the updater at a fake GitHub API for the
// duration of a test, restoring the real endpoint afterwards.
func withStubRelease(t *testing.T, release ReleaseInfo, status int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.v3+json" {
			t.Errorf("missing GitHub Accept header, got %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(release)
		}
	}))

	prevEndpoint, prevClient := releaseEndpoint, httpClient
	releaseEndpoint = srv.URL
	httpClient = srv.Client()
	t.Cleanup(func() {
		releaseEndpoint = prevEndpoint
		httpClient = prevClient
		srv.Close()
	})
}

// buildTarGz packs content into a tar.gz archive under the given filename.
func buildTarGz(t *testing.T, filename string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	if err := tw.WriteHeader(&tar.Header{Name: filename, Mode: 0o755, Size: int64(len(content))}); err != nil {
		t.Fatalf("writing tar header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("writing tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

func TestCheckVersion_UpdateAvailable(t *testing.T) {
	withStubRelease(t, ReleaseInfo{
		TagName: "v0.3.0",
		HTMLURL: "https://github.com/memkb/memkb/releases/tag/v0.3.0",
	}, http.StatusOK)

	result := CheckVersion("v0.2.0")

	if !result.UpdateAvailable {
		t.Error("expected an update to be available")
	}
	if result.LatestVersion != "0.3.0" {
		t.Errorf("LatestVersion = %q, want 0.3.0", result.LatestVersion)
	}
	if result.CurrentVersion != "0.2.0" {
		t.Errorf("CurrentVersion = %q, want 0.2.0", result.CurrentVersion)
	}
	if result.ReleaseURL == "" {
		t.Error("expected release URL to be set")
	}
}

func TestCheckVersion_AlreadyCurrent(t *testing.T) {
	withStubRelease(t, ReleaseInfo{TagName: "v0.2.0"}, http.StatusOK)

	if CheckVersion("0.2.0").UpdateAvailable {
		t.Error("same version must not report an update")
	}
}

func TestCheckVersion_DevBuildNeverUpdates(t *testing.T) {
	withStubRelease(t, ReleaseInfo{TagName: "v9.9.9"}, http.StatusOK)

	if CheckVersion("dev").UpdateAvailable {
		t.Error("dev builds must never report an update")
	}
}

func TestCheckVersion_APIFailureIsSilent(t *testing.T) {
	withStubRelease(t, ReleaseInfo{}, http.StatusForbidden)

	result := CheckVersion("0.2.0")
	if result.UpdateAvailable {
		t.Error("API failure must not report an update")
	}
	if result.CurrentVersion != "0.2.0" {
		t.Errorf("CurrentVersion = %q, want 0.2.0", result.CurrentVersion)
	}
}

func TestCheckVersion_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	prevEndpoint := releaseEndpoint
	releaseEndpoint = srv.URL
	t.Cleanup(func() { releaseEndpoint = prevEndpoint })

	if CheckVersion("0.2.0").UpdateAvailable {
		t.Error("network failure must not report an update")
	}
}

func TestSelfUpdate_RefusesWhenCurrent(t *testing.T) {
	withStubRelease(t, ReleaseInfo{TagName: "v0.2.0"}, http.StatusOK)

	if err := SelfUpdate("0.2.0"); err == nil {
		t.Fatal("expected error when already at latest")
	}
}

func TestSelfUpdate_APIError(t *testing.T) {
	withStubRelease(t, ReleaseInfo{}, http.StatusInternalServerError)

	if err := SelfUpdate("0.2.0"); err == nil {
		t.Fatal("expected error on API failure")
	}
}

func TestSelfUpdate_NoMatchingAsset(t *testing.T) {
	withStubRelease(t, ReleaseInfo{
		TagName: "v0.3.0",
		Assets:  []Asset{{Name: "memkb_0.3.0_plan9_mips.tar.gz", BrowserDownloadURL: "https://example.com/nope"}},
	}, http.StatusOK)

	if err := SelfUpdate("0.2.0"); err == nil {
		t.Fatal("expected error when no matching asset exists")
	}
}

func TestExtractBinary_TarGz(t *testing.T) {
	content := []byte("#!/bin/sh\necho updated\n")
	archive := buildTarGz(t, "memkb", content)

	data, err := extractBinary(bytes.NewReader(archive), "memkb_0.3.0_linux_amd64.tar.gz")
	if err != nil {
		t.Fatalf("extractBinary: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("extracted = %q, want %q", data, content)
	}
}

func TestExtractBinary_NestedPath(t *testing.T) {
	content := []byte("binary")
	archive := buildTarGz(t, "dist/memkb", content)

	data, err := extractFromTarGz(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("extractFromTarGz: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("extracted = %q, want %q", data, content)
	}
}

func TestExtractBinary_NotInArchive(t *testing.T) {
	archive := buildTarGz(t, "README.md", []byte("docs"))

	if _, err := extractFromTarGz(bytes.NewReader(archive)); err == nil {
		t.Fatal("expected error when binary missing from archive")
	}
}

func TestExtractBinary_InvalidGzip(t *testing.T) {
	if _, err := extractFromTarGz(bytes.NewReader([]byte("not gzip"))); err == nil {
		t.Fatal("expected error on invalid gzip data")
	}
}

func TestExtractBinary_ZipUnsupported(t *testing.T) {
	if _, err := extractBinary(bytes.NewReader([]byte("fake")), "memkb_0.3.0_windows_amd64.zip"); err == nil {
		t.Fatal("expected error from zip extraction")
	}
}

func TestBuildAssetName(t *testing.T) {
	wantExt := "tar.gz"
	if runtime.GOOS == "windows" {
		wantExt = "zip"
	}
	want := "memkb_0.3.0_" + runtime.GOOS + "_" + runtime.GOARCH + "." + wantExt

	if got := buildAssetName("0.3.0"); got != want {
		t.Errorf("buildAssetName = %q, want %q", got, want)
	}
}

func TestIsNewer(t *testing.T) {
	cases := []struct {
		current, latest string
		want            bool
	}{
		{"0.2.0", "0.2.1", true},
		{"0.2.0", "0.3.0", true},
		{"0.2.0", "1.0.0", true},
		{"0.9.0", "0.10.0", true},
		{"0.2", "0.2.1", true},
		{"0.2.0", "0.2.0", false},
		{"0.3.0", "0.2.0", false},
		{"1.0.0", "0.9.9", false},
		{"dev", "1.0.0", false},
		{"", "1.0.0", false},
		{"1.0.0", "", false},
	}
	for _, tc := range cases {
		if got := isNewer(tc.current, tc.latest); got != tc.want {
			t.Errorf("isNewer(%q, %q) = %v, want %v", tc.current, tc.latest, got, tc.want)
		}
	}
}

func TestNormalizeVersion(t *testing.T) {
	if got := normalizeVersion("v1.2.3"); got != "1.2.3" {
		t.Errorf("normalizeVersion(v1.2.3) = %q", got)
	}
	if got := normalizeVersion("1.2.3"); got != "1.2.3" {
		t.Errorf("normalizeVersion(1.2.3) = %q", got)
	}
}
