// Copyright Contributors to the KubeTask project

package logging

import "testing"

func TestNew_ReturnsUsableLogger(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		logger := New(verbose)
		logger.Info("smoke test", "verbose", verbose)
		if !logger.Enabled() {
			t.Errorf("New(%v) returned a disabled logger", verbose)
		}
	}
}
