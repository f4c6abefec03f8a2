// Copyright Contributors to the KubeTask project

package jobexpand_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestJobexpand(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "jobexpand scenario suite")
}
