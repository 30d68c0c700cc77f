package apfc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// installFakeToolchain puts an executable named "toolchain" on PATH for the
// duration of the test, so Workspace's runToolchain has something real to
// exec. exitCode/stdout/stderr let the caller script a deterministic result.
func installFakeToolchain(t *testing.T, exitCode int, stdout, stderr string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain script is POSIX-shell only")
	}
	dir := t.TempDir()
	script := fmt.Sprintf("#!/bin/sh\nprintf %%s %q\nprintf %%s %q >&2\nexit %d\n", stdout, stderr, exitCode)
	path := filepath.Join(dir, "toolchain")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestWorkspaceResolveRejectsEscape(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = ws.resolve("../../etc/passwd")
	require.Error(t, err)
	require.Equal(t, ErrKindWorkspaceSecurity, KindOf(err))

	abs, err := ws.resolve("src/Core/Widget.go")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(abs))
}

func TestWorkspaceWriteReadExists(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)

	require.False(t, ws.Exists("src/Core/Widget.go"))
	require.NoError(t, ws.Write("src/Core/Widget.go", []byte("package core\n")))
	require.True(t, ws.Exists("src/Core/Widget.go"))

	data, err := ws.Read("src/Core/Widget.go")
	require.NoError(t, err)
	require.Equal(t, "package core\n", string(data))
}

func TestValidateName(t *testing.T) {
	require.NoError(t, validateName("Demo"))
	require.NoError(t, validateName("Demo_Core-1.2"))
	require.Error(t, validateName("../evil"))
	require.Error(t, validateName("has space"))
	require.Error(t, validateName(""))
}

func TestWorkspaceScaffoldSolutionAndLibrary(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ws.ScaffoldSolution(ctx, "Demo"))
	require.True(t, ws.Exists("Demo.sln"))

	require.NoError(t, ws.ScaffoldLibrary(ctx, "Core", "src/Core"))
	require.True(t, ws.Exists("src/Core/Core.proj"))

	require.NoError(t, ws.AttachLibrary(ctx, "Demo", "src/Core/Core.proj"))
	data, err := ws.Read("Demo.sln")
	require.NoError(t, err)
	require.Contains(t, string(data), "src/Core/Core.proj")

	err = ws.ScaffoldSolution(ctx, "../evil")
	require.Error(t, err)
	require.Equal(t, ErrKindWorkspaceSecurity, KindOf(err))
}

func TestWorkspaceAttachLibraryRejectsNonProjectFile(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ws.ScaffoldSolution(ctx, "Demo"))
	require.NoError(t, ws.Write("src/Core/Widget.go", []byte("package core\n")))

	err = ws.AttachLibrary(ctx, "Demo", "src/Core/Widget.go")
	require.Error(t, err)
	require.Equal(t, ErrKindWorkspaceSecurity, KindOf(err))
}

func TestWorkspaceBuildProjectSuccess(t *testing.T) {
	installFakeToolchain(t, 0, "", "")
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, ws.ScaffoldSolution(context.Background(), "Demo"))

	result, err := ws.BuildProject(context.Background(), "Demo.sln")
	require.NoError(t, err)
	require.True(t, result.Success())
}

func TestWorkspaceBuildProjectFailureParsesDiagnostics(t *testing.T) {
	installFakeToolchain(t, 1, "", "src/Core/Widget.go:3:5: undefined: Foo\n")
	ws, err := NewWorkspace(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, ws.ScaffoldSolution(context.Background(), "Demo"))

	result, err := ws.BuildProject(context.Background(), "Demo.sln")
	require.NoError(t, err)
	require.False(t, result.Success())
	require.Equal(t, 1, result.ExitCode)
	require.Len(t, result.Diagnostics, 1)
	require.Equal(t, "src/Core/Widget.go", result.Diagnostics[0].File)
	require.Equal(t, 3, result.Diagnostics[0].Line)
	require.Equal(t, 5, result.Diagnostics[0].Column)
	require.Contains(t, result.Diagnostics[0].Message, "undefined: Foo")
}

func TestParseGoDiagnosticsMultipleLines(t *testing.T) {
	stderr := "a.go:1:2: first error\nb.go:10:20: second error\nnot a diagnostic line\n"
	diags := ParseGoDiagnostics("", stderr)
	require.Len(t, diags, 2)
	require.Equal(t, "a.go", diags[0].File)
	require.Equal(t, "b.go", diags[1].File)
	require.Equal(t, 10, diags[1].Line)
	require.Equal(t, 20, diags[1].Column)
}

func TestAtoiSafe(t *testing.T) {
	require.Equal(t, 123, atoiSafe("123"))
	require.Equal(t, 0, atoiSafe(""))
	require.Equal(t, 12, atoiSafe("12abc"))
}
