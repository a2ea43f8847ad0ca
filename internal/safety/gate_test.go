package safety

import (
	"strings"
	"testing"

	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanScript = `package main

import (
	"fmt"
	"remedy"
)

func Remediate() error {
	resp, err := remedy.Post("http://chaos-app:8000/chaos/resolve")
	if err != nil {
		return err
	}
	fmt.Println("status", resp)
	return nil
}
`

func TestCheck_CleanScriptIsSafe(t *testing.T) {
	v := Check(cleanScript)
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Findings)
	assert.Equal(t, Safe, v.Classification())
}

func TestCheck_SyntaxErrorBlocks(t *testing.T) {
	for _, code := range []string{
		"func Remediate() error { return nil",
		"def remediate():\n    requests.post('http://x')",
		"package main\nfunc Remediate() error { x := }",
	} {
		v := Check(code)
		assert.True(t, v.Blocked, code)
		require.NotEmpty(t, v.Findings, code)
		assert.True(t, strings.HasPrefix(v.Findings[0], "invalid syntax"), v.Findings[0])
		assert.Equal(t, Blocked, v.Classification())
	}
}

func TestCheck_DeniedImportsWarnOnly(t *testing.T) {
	code := `package main

import (
	"os"
	"os/exec"
	"unsafe"
	"net/http"
	"strings"
)

func Remediate() error {
	_ = strings.ToUpper("x")
	_ = unsafe.Sizeof(0)
	_, _ = http.Get("http://x")
	os.Remove("/tmp/x")
	return exec.Command("true").Run()
}
`
	v := Check(code)
	assert.False(t, v.Blocked)
	assert.Equal(t, Warned, v.Classification())
	require.Len(t, v.Findings, 4)
	assert.Contains(t, v.Findings[0], `"os"`)
	assert.Contains(t, v.Findings[0], "filesystem mutation")
	assert.Contains(t, v.Findings[1], "process execution")
	assert.Contains(t, v.Findings[2], "interpreter/OS escape")
	assert.Contains(t, v.Findings[3], "unrestricted network access")
}

func TestCheck_BlockedStillReportsImports(t *testing.T) {
	code := "package main\nimport \"os/exec\"\nfunc Remediate() error { exec.Command( }"
	v := Check(code)
	assert.True(t, v.Blocked)
	require.Len(t, v.Findings, 2)
	assert.Contains(t, v.Findings[1], "os/exec")
}

func TestCheck_MissingPackageClauseTreatedAsMain(t *testing.T) {
	v := Check("// fix it\nfunc Remediate() error { return nil }")
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Findings)
}

func TestCheck_StructureWarnings(t *testing.T) {
	v := Check("package tool\nfunc Remediate() error { return nil }")
	assert.False(t, v.Blocked)
	assert.Equal(t, []string{"package tool: scripts must be package main"}, v.Findings)

	v = Check("package main\nfunc Fix() error { return nil }")
	assert.False(t, v.Blocked)
	require.Len(t, v.Findings, 1)
	assert.Contains(t, v.Findings[0], "no Remediate function")

	v = Check("package main\nfunc Remediate(x int) {}")
	require.Len(t, v.Findings, 1)
	assert.Contains(t, v.Findings[0], "signature")
}

func TestNormalizeScript(t *testing.T) {
	assert.True(t, strings.HasPrefix(NormalizeScript("func Remediate() error { return nil }"), "package main\n"))
	assert.Equal(t, "package main\nfunc F() {}\n", NormalizeScript("  package main\nfunc F() {}  "))
	assert.True(t, strings.HasPrefix(NormalizeScript(""), "package main"))
}

func TestCheckPatch(t *testing.T) {
	v := CheckPatch(remediation.PatchAction{FilePath: "main.py", OriginalCode: "x = 1", FixedCode: "x = 2"})
	assert.Equal(t, Safe, v.Classification())

	// Patches never get an import gate.
	v = CheckPatch(remediation.PatchAction{FilePath: "main.py", OriginalCode: "import json", FixedCode: "import os, subprocess"})
	assert.Equal(t, Safe, v.Classification())

	v = CheckPatch(remediation.PatchAction{FilePath: "main.py", OriginalCode: "", FixedCode: "x"})
	assert.True(t, v.Blocked)

	v = CheckPatch(remediation.PatchAction{FilePath: " ", OriginalCode: "a", FixedCode: "b"})
	assert.True(t, v.Blocked)

	v = CheckPatch(remediation.PatchAction{FilePath: "main.py", OriginalCode: "a", FixedCode: "a"})
	assert.Equal(t, Warned, v.Classification())

	v = CheckPatch(remediation.PatchAction{FilePath: "main.py", OriginalCode: "a", FixedCode: ""})
	assert.Equal(t, Warned, v.Classification())
}
