// Copyright Contributors to the KubeTask project

package cmdline

import (
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

// InstallCommand is the result of building a package-install command line
// from a homogeneous list of package references.
type InstallCommand struct {
	CmdLine   string
	IsWindows bool
}

const chocoBootstrap = `@powershell -NoProfile -ExecutionPolicy Bypass -Command "iex ((New-Object System.Net.WebClient).DownloadString('https://chocolatey.org/install.ps1'))"`

// BuildPackageInstallCommand turns a homogeneous list of package
// references into one install command: aptPackage/yumPackage (Linux) and
// chocolateyPackage (Windows); applicationPackage and unknown types are
// rejected.
func BuildPackageInstallCommand(refs []jobmodel.Doc) (InstallCommand, error) {
	if len(refs) == 0 {
		return InstallCommand{}, nil
	}

	typ, _ := jobmodel.GetString(refs[0], "type")
	for _, r := range refs {
		t, _ := jobmodel.GetString(r, "type")
		if t != typ {
			return InstallCommand{}, jexerr.New(jexerr.TypeMismatch, "cannot mix package reference types %q and %q", typ, t)
		}
	}

	switch typ {
	case "aptPackage":
		return InstallCommand{CmdLine: buildAptCommand(refs), IsWindows: false}, nil
	case "yumPackage":
		return InstallCommand{CmdLine: buildYumCommand(refs), IsWindows: false}, nil
	case "chocolateyPackage":
		return InstallCommand{CmdLine: buildChocoCommand(refs), IsWindows: true}, nil
	case "applicationPackage":
		return InstallCommand{}, jexerr.New(jexerr.Unsupported, "applicationPackage references are not supported")
	default:
		return InstallCommand{}, jexerr.New(jexerr.TypeMismatch, "unknown package reference type %q", typ)
	}
}

func buildAptCommand(refs []jobmodel.Doc) string {
	parts := []string{"apt-get update"}
	for _, r := range refs {
		id, _ := jobmodel.GetString(r, "id")
		spec := id
		if v, ok := jobmodel.GetString(r, "version"); ok && v != "" {
			spec = id + "=" + v
		}
		parts = append(parts, "apt-get install -y "+spec)
	}
	return strings.Join(parts, "; ")
}

func buildYumCommand(refs []jobmodel.Doc) string {
	var parts []string
	for _, r := range refs {
		id, _ := jobmodel.GetString(r, "id")
		spec := id
		if v, ok := jobmodel.GetString(r, "version"); ok && v != "" {
			spec = id + "-" + v
		}
		cmd := "yum -y install " + spec
		if de, ok := jobmodel.GetString(r, "disableExcludes"); ok && de != "" {
			cmd += " --disableexcludes=" + de
		}
		parts = append(parts, cmd)
	}
	return strings.Join(parts, "; ")
}

func buildChocoCommand(refs []jobmodel.Doc) string {
	installs := make([]string, 0, len(refs))
	for _, r := range refs {
		id, _ := jobmodel.GetString(r, "id")
		cmd := "choco install " + id
		if v, ok := jobmodel.GetString(r, "version"); ok && v != "" {
			cmd += " --version " + v
		}
		if allow, ok := jobmodel.GetBool(r, "allowEmptyChecksums"); ok && allow {
			cmd += " --allow-empty-checksums"
		}
		installs = append(installs, cmd)
	}
	// The PATH step makes the freshly bootstrapped choco binary visible to
	// the install fragments that follow.
	return chocoBootstrap +
		` && SET PATH="%PATH%;%ALLUSERSPROFILE%\chocolatey\bin"` +
		" && choco feature enable -n=allowGlobalConfirmation & " +
		strings.Join(installs, " & ")
}
