package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/CloudyKit/jet"
)

// ConfigTemplateName is the template rendered by SerialiseConfig, looked up
// under the template root directory.
const ConfigTemplateName = "A3D_Config.tpl"

// DefaultTemplateRoot is where the server expects its templates relative to
// the working directory.
const DefaultTemplateRoot = "data/templates"

// lookupTemplate compiles a template from the given root directory. When the
// file is not present on disk the builtin copy shipped with the binary is
// used instead, so the serialiser keeps working in stripped-down deployments.
func lookupTemplate(templateRoot, name, builtin string) (*jet.Template, error) {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), templateRoot, "/")

	if _, err := os.Stat(filepath.Join(templateRoot, name)); err == nil {
		tpl, err := view.GetTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("Error trying to parse template %s: %v", name, err)
		}
		return tpl, nil
	}

	tpl, err := view.LoadTemplate(name, builtin)
	if err != nil {
		return nil, fmt.Errorf("Error trying to parse builtin template %s: %v", name, err)
	}
	return tpl, nil
}

// ExecuteWriteTemplate renders a compiled template with the supplied context
// into a stream.
func ExecuteWriteTemplate(w io.Writer, tpl *jet.Template, data interface{}) error {
	vars := make(jet.VarMap)
	if err := tpl.Execute(w, vars, data); err != nil {
		return fmt.Errorf("Error executing template: %v", err)
	}
	return nil
}
