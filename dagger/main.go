// turbocodec Dagger module for CI/CD pipeline
//
// Containerized test, race, lint, vulnerability scan and build steps for the
// turbocodec module.
//
// Functions include:
// - Test: Run Go tests
// - Race: Run Go tests with the race detector (codec, batch and web hub)
// - Lint: Run golangci-lint
// - Vuln: Run govulncheck for vulnerability scanning
// - Build: Build the turbocodec binary with version ldflags
// - CI: Run the complete CI pipeline

package main

import (
	"context"
	"dagger/turbocodec/internal/dagger"
)

type Turbocodec struct{}

// Base returns a Go container with the turbocodec source mounted
func (m *Turbocodec) Base(source *dagger.Directory) *dagger.Container {
	return dag.Container().
		From("golang:1.25").
		WithMountedDirectory("/src", source).
		WithWorkdir("/src")
}

// Test runs all Go tests in the turbocodec module
func (m *Turbocodec) Test(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.Base(source).
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// Race runs the tests with the race detector
func (m *Turbocodec) Race(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.Base(source).
		WithExec([]string{"go", "test", "-race", "./pkg/...", "./cmd/..."}).
		Stdout(ctx)
}

// Lint runs golangci-lint on the turbocodec module
func (m *Turbocodec) Lint(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.Base(source).
		WithExec([]string{"go", "install", "github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest"}).
		WithExec([]string{"golangci-lint", "run", "./..."}).
		Stdout(ctx)
}

// Vuln runs govulncheck on the turbocodec module
func (m *Turbocodec) Vuln(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.Base(source).
		WithExec([]string{"go", "install", "golang.org/x/vuln/cmd/govulncheck@latest"}).
		WithExec([]string{"govulncheck", "./..."}).
		Stdout(ctx)
}

// Build builds the turbocodec binary, stamping version into main.Version
func (m *Turbocodec) Build(source *dagger.Directory, version string) *dagger.File {
	ldflags := "-s -w -X main.Version=" + version
	return m.Base(source).
		WithEnvVariable("CGO_ENABLED", "0").
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", "turbocodec", "./cmd/turbocodec"}).
		File("/src/turbocodec")
}

// CI runs the complete CI pipeline (test, race, lint, vuln check)
func (m *Turbocodec) CI(ctx context.Context, source *dagger.Directory) (string, error) {
	// Run tests
	if _, err := m.Test(ctx, source); err != nil {
		return "", err
	}

	if _, err := m.Race(ctx, source); err != nil {
		return "", err
	}

	// Run linter
	if _, err := m.Lint(ctx, source); err != nil {
		return "", err
	}

	// Run vulnerability check
	if _, err := m.Vuln(ctx, source); err != nil {
		return "", err
	}

	return "CI pipeline completed successfully", nil
}
