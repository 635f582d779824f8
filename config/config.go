package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultIndexFilename   = "faces.index"
	DefaultMappingFilename = "faces.index.map"
)

const (
	defaultFaceQueueSize  = 200
	defaultNumFaceWorkers = 4

	// defaultSimilarityThreshold is the L2 distance at which similarity
	// reaches 0%. Fixed so that percentages stay comparable across queries
	// and index snapshots.
	defaultSimilarityThreshold = 0.6
)

type Config struct {
	// source directory (where original face images live)
	FacesDirectory string

	// database path
	DatabasePath string

	// index artifact locations (vectors + identity mapping, co-located)
	IndexStoragePath string // directory holding index artifacts
	IndexPath        string // full-calculated path for the vector file
	MappingPath      string // full-calculated path for the identity mapping

	// similarity calibration
	SimilarityThreshold float64

	// worker settings
	FaceQueueSize  int
	NumFaceWorkers int

	// face detection model paths (DNN)
	DetectorConfigPath string
	DetectorModelPath  string

	// face recognition model (DNN)
	RecognitionModelPath string
	RecognitionModelName string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	facesDir := getEnvOrDefault("FACES_DIRECTORY", "./faces")
	absFacesDir, err := filepath.Abs(facesDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for faces directory '%s': %w", facesDir, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "faces.db")

	indexStorage := getEnvOrDefault("INDEX_STORAGE_PATH", filepath.Join(".", "index_storage"))
	absIndexStorage, err := filepath.Abs(indexStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for index storage '%s': %w", indexStorage, err)
	}

	cfg := Config{
		FacesDirectory:       absFacesDir,
		DatabasePath:         dbPath,
		IndexStoragePath:     absIndexStorage,
		IndexPath:            filepath.Join(absIndexStorage, DefaultIndexFilename),
		MappingPath:          filepath.Join(absIndexStorage, DefaultMappingFilename),
		SimilarityThreshold:  getEnvFloatOrDefault("SIMILARITY_THRESHOLD", defaultSimilarityThreshold),
		FaceQueueSize:        getEnvIntOrDefault("FACE_QUEUE_SIZE", defaultFaceQueueSize),
		NumFaceWorkers:       getEnvIntOrDefault("NUM_FACE_WORKERS", defaultNumFaceWorkers),
		DetectorConfigPath:   getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		DetectorModelPath:    getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		RecognitionModelPath: getEnvOrDefault("RECOGNITION_MODEL_PATH", "./models/arcface.onnx"),
		RecognitionModelName: getEnvOrDefault("RECOGNITION_MODEL_NAME", "arcface"),
	}

	return cfg, nil
}
