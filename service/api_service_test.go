package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/api/client"
	"github.com/sealedvote/sealedvote-node/archiver"
	"github.com/sealedvote/sealedvote-node/util"
)

func TestAPIService(t *testing.T) {
	c := qt.New(t)

	reg, _, stg, _, _ := newServicePipeline(t)

	port := util.RandomInt(40000, 60000)
	apiService := NewAPI(&api.APIConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Registry: reg,
		Storage:  stg,
		Network:  "test",
		Version:  "0.0.1",
	}, true)

	host, gotPort := apiService.HostPort()
	c.Assert(host, qt.Equals, "127.0.0.1")
	c.Assert(gotPort, qt.Equals, port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := apiService.Start(ctx)
	c.Assert(err, qt.IsNil)
	defer apiService.Stop()

	err = apiService.Start(ctx)
	c.Assert(err, qt.ErrorMatches, "service already running")

	// Wait for the HTTP server to start
	time.Sleep(500 * time.Millisecond)

	cli, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
	c.Assert(err, qt.IsNil)

	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.Network, qt.Equals, "test")
}

func TestArchiverServiceValidation(t *testing.T) {
	c := qt.New(t)

	reg, _, stg, _, _ := newServicePipeline(t)

	_, err := NewArchiver(reg, stg, nil)
	c.Assert(err, qt.ErrorMatches, "s3 export not enabled")

	cfg := archiver.DefaultS3Config()
	cfg.Enabled = true
	_, err = NewArchiver(reg, stg, cfg)
	c.Assert(err, qt.ErrorMatches, "s3 access key and secret key are required")
}
