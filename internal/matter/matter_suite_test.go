package matter_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMatter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Matter Suite")
}
