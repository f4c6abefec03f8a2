// Copyright Contributors to the KubeTask project

// Package cmdline rewrites task command lines: OS-aware package-install
// command construction, output-file upload wrapping, and setup-task
// assembly.
package cmdline

import (
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

// OSFlavor is the pool's inferred operating system, governing command-line
// quoting and which wrapper scripts apply.
type OSFlavor string

const (
	Linux   OSFlavor = "linux"
	Windows OSFlavor = "windows"
)

// InferOSFlavor returns linux unless the pool's VM image publisher is
// present and contains "MicrosoftWindowsServer".
func InferOSFlavor(pool jobmodel.Doc) OSFlavor {
	vmConfig, ok := jobmodel.GetMap(pool, "virtualMachineConfiguration")
	if !ok {
		return Linux
	}
	imageRef, ok := jobmodel.GetMap(vmConfig, "imageReference")
	if !ok {
		return Linux
	}
	publisher, ok := jobmodel.GetString(imageRef, "publisher")
	if !ok {
		return Linux
	}
	if strings.Contains(publisher, "MicrosoftWindowsServer") {
		return Windows
	}
	return Linux
}

// CommandFragment is one OS-tagged command-line fragment to be folded into
// a setup task, optionally carrying resource files it depends on.
type CommandFragment struct {
	CmdLine       string
	IsWindows     bool
	ResourceFiles []any
}

// BuildSetupTask concatenates fragments onto an existing
// start/preparation task, which may be nil. Mixing Windows and Linux
// fragments is rejected.
func BuildSetupTask(existing jobmodel.Doc, fragments []CommandFragment) (jobmodel.Doc, error) {
	if len(fragments) == 0 {
		if existing != nil {
			return existing, nil
		}
		return jobmodel.Doc{}, nil
	}

	isWindows := fragments[0].IsWindows
	for _, f := range fragments {
		if f.IsWindows != isWindows {
			return nil, jexerr.New(jexerr.TypeMismatch, "cannot mix Windows and Linux command fragments in one setup task")
		}
	}

	var cmdLines []string
	var resourceFiles []any
	for _, f := range fragments {
		cmdLines = append(cmdLines, f.CmdLine)
		resourceFiles = append(resourceFiles, f.ResourceFiles...)
	}

	task := jobmodel.Doc{}
	if existing != nil {
		if t, ok := jobmodel.DeepCopy(existing).(jobmodel.Doc); ok {
			task = t
		}
		if existingCmd, ok := jobmodel.GetString(existing, "commandLine"); ok && existingCmd != "" {
			cmdLines = append(cmdLines, existingCmd)
		}
		if existingRF, ok := jobmodel.GetSlice(existing, "resourceFiles"); ok {
			resourceFiles = append(resourceFiles, existingRF...)
		}
	}

	if isWindows {
		task["commandLine"] = strings.Join(cmdLines, " & ")
	} else {
		task["commandLine"] = "/bin/bash -c " + shellQuote(strings.Join(cmdLines, ";"))
	}
	task["resourceFiles"] = resourceFiles
	task["userIdentity"] = jobmodel.Doc{
		"autoUser": jobmodel.Doc{
			"elevationLevel": "admin",
		},
	}
	task["waitForSuccess"] = true
	return task, nil
}

// shellQuote wraps s in single quotes for use as one /bin/bash -c argument,
// escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
