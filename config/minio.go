package config

type MinioConfig struct {
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"useSSL"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucketName"`
}

func (c MinioConfig) withEnv() MinioConfig {
	setString(&c.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Endpoint, "MINIO_ENDPOINT")
	setBool(&c.UseSSL, "MINIO_USE_SSL")
	setString(&c.Region, "MINIO_REGION")
	setString(&c.BucketName, "MINIO_BUCKET_NAME")
	return c
}
