package safety

// Category groups denylisted imports by the capability they grant.
type Category string

const (
	CategoryProcessExecution Category = "process_execution"
	CategoryFilesystem       Category = "filesystem_mutation"
	CategoryEscape           Category = "interpreter_escape"
	CategoryNetwork          Category = "unrestricted_network"
	CategorySyntax           Category = "invalid_syntax"
	CategoryStructure        Category = "structure"
)

// DeniedImports maps import paths a remediation script must not need to the
// capability class they expose. Scripts reach the outside world only through
// the runtime's remedy package.
var DeniedImports = map[string]Category{
	// Process execution
	"os/exec":                  CategoryProcessExecution,
	"os/signal":                CategoryProcessExecution,
	"syscall":                  CategoryProcessExecution,
	"golang.org/x/sys/unix":    CategoryProcessExecution,
	"golang.org/x/sys/windows": CategoryProcessExecution,

	// Filesystem mutation
	"os":          CategoryFilesystem,
	"io/ioutil":   CategoryFilesystem,
	"io/fs":       CategoryFilesystem,
	"archive/tar": CategoryFilesystem,
	"archive/zip": CategoryFilesystem,

	// Interpreter and OS escape
	"unsafe":                          CategoryEscape,
	"plugin":                          CategoryEscape,
	"reflect":                         CategoryEscape,
	"runtime":                         CategoryEscape,
	"runtime/debug":                   CategoryEscape,
	"C":                               CategoryEscape,
	"github.com/traefik/yaegi/interp": CategoryEscape,
	"github.com/traefik/yaegi/stdlib": CategoryEscape,

	// Raw network access bypassing the bounded HTTP client
	"net":      CategoryNetwork,
	"net/http": CategoryNetwork,
	"net/rpc":  CategoryNetwork,
}

var categoryLabels = map[Category]string{
	CategoryProcessExecution: "process execution",
	CategoryFilesystem:       "filesystem mutation",
	CategoryEscape:           "interpreter/OS escape",
	CategoryNetwork:          "unrestricted network access",
}
