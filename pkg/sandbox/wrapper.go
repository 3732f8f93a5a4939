package sandbox

import (
	"fmt"
	"strings"
)

// errorMarker is printed by the wrapper when user code raises. Its
// presence in stdout turns an exit-0 run into an error artifact.
const errorMarker = "EXECUTION ERROR:"

// wrapperTemplate hosts the user code inside a harness that pins a
// headless matplotlib backend, exposes the dataset path, catches any
// exception onto stdout, and auto-saves open figures to result.png.
const wrapperTemplate = `import os
import sys
import traceback

try:
    import matplotlib
    matplotlib.use("Agg")
except ImportError:
    matplotlib = None

if hasattr(sys.stdout, "reconfigure"):
    sys.stdout.reconfigure(encoding="utf-8")

DATASET_PATH = os.environ.get("DATASET_PATH", %q)

try:
%s
except Exception:
    print(%q)
    traceback.print_exc(file=sys.stdout)

if matplotlib is not None:
    import matplotlib.pyplot as plt
    if plt.get_fignums():
        plt.savefig("result.png", dpi=100, bbox_inches="tight")
`

// renderWrapper indents the user code under the try block and fills in
// the dataset filename.
func renderWrapper(code, datasetFile string) string {
	indented := indent(code, "    ")
	if strings.TrimSpace(indented) == "" {
		indented = "    pass"
	}
	return fmt.Sprintf(wrapperTemplate, datasetFile, indented, errorMarker)
}

func indent(code, prefix string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
