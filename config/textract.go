package config

import (
	"strconv"

	"github.com/feichai0017/document-chunker/internal/agent/document/image"
)

type TextractConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	// MinConfidence drops words below it (0..100).
	MinConfidence float32 `yaml:"minConfidence"`
	EnableTable   bool    `yaml:"enableTable"`
}

func (c TextractConfig) withEnv() TextractConfig {
	setString(&c.Region, "AWS_REGION")
	setString(&c.Endpoint, "AWS_ENDPOINT")
	setString(&c.AccessKey, "AWS_ACCESS_KEY")
	setString(&c.SecretKey, "AWS_SECRET_KEY")
	setBool(&c.EnableTable, "TEXTRACT_ENABLE_TABLE")
	var conf string
	setString(&conf, "TEXTRACT_MIN_CONFIDENCE")
	if v, err := strconv.ParseFloat(conf, 32); err == nil {
		c.MinConfidence = float32(v)
	}
	return c
}

// Engine returns the engine settings, or nil when no region is configured.
func (c TextractConfig) Engine() *image.TextractConfig {
	if c.Region == "" {
		return nil
	}
	return &image.TextractConfig{
		Region:        c.Region,
		AccessKey:     c.AccessKey,
		SecretKey:     c.SecretKey,
		MinConfidence: c.MinConfidence,
		EnableTable:   c.EnableTable,
	}
}
