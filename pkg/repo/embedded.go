package repo

import (
	"net/url"
	"time"

	"codeberg.org/idgov/idgov/pkg/config"
	"go.etcd.io/etcd/server/v3/embed"
	"go.uber.org/zap"
)

// StartEmbedded runs a single-node embedded etcd for deployments without an
// external cluster.
func StartEmbedded(c config.EtcdConfig, logger *zap.Logger) (*embed.Etcd, error) {
	eCfg := embed.NewConfig()
	eCfg.Dir = c.DataDir
	eCfg.LogLevel = "warn"
	eCfg.Name = c.Name

	cu, err := url.Parse(c.ClientAddr)
	if err != nil {
		return nil, err
	}
	pu, err := url.Parse(c.PeerAddr)
	if err != nil {
		return nil, err
	}

	eCfg.ListenClientUrls = []url.URL{*cu}
	eCfg.AdvertiseClientUrls = []url.URL{*cu}
	eCfg.ListenPeerUrls = []url.URL{*pu}
	eCfg.AdvertisePeerUrls = []url.URL{*pu}
	eCfg.InitialCluster = c.Name + "=" + c.PeerAddr

	eCfg.MaxSnapFiles = 5
	eCfg.MaxWalFiles = 5
	eCfg.SnapshotCount = 10000
	eCfg.AutoCompactionRetention = "1h"
	eCfg.AutoCompactionMode = "periodic"

	logger.Info("starting embedded etcd",
		zap.String("name", eCfg.Name),
		zap.String("data_dir", eCfg.Dir),
		zap.String("client_urls", eCfg.ListenClientUrls[0].String()))

	e, err := embed.StartEtcd(eCfg)
	if err != nil {
		return nil, err
	}

	select {
	case <-e.Server.ReadyNotify():
		logger.Info("embedded etcd ready", zap.String("node", eCfg.Name))
	case <-time.After(60 * time.Second):
		e.Close()
		logger.Fatal("etcd failed to become ready within timeout")
	case <-e.Server.StopNotify():
		logger.Fatal("etcd stopped unexpectedly during startup")
	}

	return e, nil
}

// Endpoints resolves the client endpoints the store should dial.
func Endpoints(c config.EtcdConfig) []string {
	if len(c.Endpoints) > 0 {
		return c.Endpoints
	}
	return []string{c.ClientAddr}
}
