package service

import (
	"os"
	"testing"

	"s3shift-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("info", "json", "")
	os.Exit(m.Run())
}
