package config

import "errors"

const (
	DefaultPort        = 8080
	DefaultHost        = "0.0.0.0"
	DefaultEnvironment = "prod"

	DefaultModelFamily   = "blip"
	DefaultLocalModelDir = "models"
	DefaultHFModelName   = "Salesforce/blip-image-captioning-base"

	DefaultBeamSize     = 3
	DefaultMaxNewTokens = 80
)

var (
	ErrConfigNotLoaded    = errors.New("config not loaded")
	ErrLocalModelDirUnset = errors.New("local model directory is not set")
	ErrBadBeamSize        = errors.New("beam size must be at least 1")
	ErrBadTokenBudget     = errors.New("max new tokens must be at least 1")
)
