// Package setup builds the collaborators shared by the command line tool
// and the HTTP server from a Config.
package setup

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/config"
	"github.com/zhchang/tasksplit/density"
	"github.com/zhchang/tasksplit/extract"
	"github.com/zhchang/tasksplit/pgstore"
)

// Extractor returns a cached Overpass extractor, shared through Redis
// when an address is configured. The returned func releases it.
func Extractor(ctx context.Context, cfg config.ExtractConfig) (extract.Extractor, func()) {
	options := []extract.CacheOption{extract.WithTTL(cfg.CacheTTL), extract.WithStale()}
	closer := func() {}
	if cfg.RedisAddr != "" {
		client, err := extract.DialRedis(ctx, cfg.RedisAddr, "", cfg.RedisDB)
		if err != nil {
			logrus.Warnf("redis %s unavailable, caching in process only: %s", cfg.RedisAddr, err)
		} else {
			options = append(options, extract.WithTier(extract.NewRedisTier(client, "tasksplit:")))
			closer = func() { client.Close() }
		}
	}
	overpass := extract.NewOverpass(cfg.OverpassURL, extract.WithTimeout(cfg.Timeout))
	return extract.NewCache(overpass, options...), closer
}

// Density connects to the database and returns an orchestrator using it.
func Density(ctx context.Context, cfg *config.Config, url string, extractor extract.Extractor) (*density.Orchestrator, *pgstore.Store, error) {
	if url == "" {
		url = cfg.DB.URL
	}
	store, err := pgstore.New(ctx, url, pgstore.WithMaxConns(cfg.DB.MaxConns))
	if err != nil {
		return nil, nil, err
	}
	return density.New(store, density.WithExtractor(extractor)), store, nil
}
