package storage

import (
	"encoding/json"
	"errors"

	"plegma/internal/model"
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeClusterConfig(cfg model.ClusterConfig) ([]byte, error) {
	return json.Marshal(cfg)
}

func DecodeClusterConfig(data []byte) (model.ClusterConfig, error) {
	var cfg model.ClusterConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.ClusterConfig{}, err
	}
	if err := checkVersion(cfg.VersionedRecord); err != nil {
		return model.ClusterConfig{}, err
	}
	return cfg, nil
}

func EncodeClusterSummary(summary model.ClusterSummary) ([]byte, error) {
	return json.Marshal(summary)
}

func DecodeClusterSummary(data []byte) (model.ClusterSummary, error) {
	var summary model.ClusterSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.ClusterSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.ClusterSummary{}, err
	}
	return summary, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != model.CurrentSchemaVersion || v.CodecVersion != model.CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
