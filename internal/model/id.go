package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

type IDType string

const (
	IDTypeCommand  IDType = "cmd"
	IDTypeWorkflow IDType = "wf"
	IDTypeRun      IDType = "run"
	IDTypeAlert    IDType = "alert"
)

var validIDTypes = map[IDType]bool{
	IDTypeCommand:  true,
	IDTypeWorkflow: true,
	IDTypeRun:      true,
	IDTypeAlert:    true,
}

var idRegex = regexp.MustCompile(`^(cmd|wf|run|alert)_[0-9]{10}_[0-9a-f]{8}$`)

func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}

	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	hexStr := hex.EncodeToString(randomBytes)

	return fmt.Sprintf("%s_%010d_%s", idType, timestamp, hexStr), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}
