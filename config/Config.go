package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig     RedisStorageConfig
	HttpPort        int
	StorageType     StorageType
	PollInterval    time.Duration
	BatchSize       int
	MaxStepsPerTick int
	MaxStepFailures int
	ClaimLease      time.Duration
	HttpCallTimeout time.Duration
	TriggerLookback time.Duration
	AnalyticsFile   string
	FieldAllowList  []string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
