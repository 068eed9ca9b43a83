package testutil

import (
	"os"

	"github.com/ethaccount/gasless/src/utils"
	"github.com/joho/godotenv"
)

// loadEnv reads the project .env when present
func loadEnv() {
	_ = godotenv.Load(utils.ProjectPath(".env"))
}

func GetEnv(key string) string {
	loadEnv()
	return os.Getenv(key)
}
