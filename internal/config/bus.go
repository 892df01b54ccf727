package config

import (
	"os"
	"strconv"
)

type BusConfig struct {
	Namespace     string
	ClientID      string
	ChangeDevice  string
	QueueCapacity int
}

func LoadBusConfig() *BusConfig {
	return &BusConfig{
		Namespace:     getEnv("BUS_NAMESPACE", "arcade"),
		ClientID:      getEnv("BUS_CLIENT_ID", "core-01"),
		ChangeDevice:  getEnv("BUS_CHANGE_DEVICE", "change-01"),
		QueueCapacity: getEnvAsInt("BUS_QUEUE_CAPACITY", 256),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
