package media

import (
	"fmt"
	"image"
	"log"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// Embedder produces zero or one embedding from a face image asset. A nil
// vector with a nil error means no face was detected; batch callers treat
// that as "no embedding", never as a terminal failure.
type Embedder interface {
	ExtractEmbedding(imagePath string) ([]float32, error)
	Close()
}

const detectionConfThreshold = 0.5

// DNNExtractor extracts face embeddings with a pair of OpenCV DNN models:
// an SSD face detector and a recognition net (ArcFace, FaceNet, ...).
// When either model fails to load the extractor stays disabled and reports
// no embeddings rather than failing callers.
type DNNExtractor struct {
	detector   gocv.Net
	recognizer gocv.Net
	Enabled    bool
	ModelName  string

	inputSizeW int
	inputSizeH int
}

var _ Embedder = (*DNNExtractor)(nil)

// NewDNNExtractor loads the detection and recognition networks.
func NewDNNExtractor(detectorConfigPath, detectorModelPath, recognitionModelPath, modelName string) *DNNExtractor {
	if recognitionModelPath == "" {
		log.Println("extractor: recognition model path is empty, disabling embedding extraction")
		return &DNNExtractor{Enabled: false}
	}
	if _, err := os.Stat(recognitionModelPath); os.IsNotExist(err) {
		log.Printf("extractor: recognition model file does not exist: %s", recognitionModelPath)
		return &DNNExtractor{Enabled: false}
	}

	detector := gocv.ReadNet(detectorModelPath, detectorConfigPath)
	if detector.Empty() {
		log.Printf("extractor: ERROR loading detection network: config=%s, model=%s", detectorConfigPath, detectorModelPath)
		return &DNNExtractor{Enabled: false}
	}

	recognizer := gocv.ReadNet(recognitionModelPath, "")
	if recognizer.Empty() {
		log.Printf("extractor: ERROR loading recognition network %s", recognitionModelPath)
		detector.Close()
		return &DNNExtractor{Enabled: false}
	}

	for _, net := range []*gocv.Net{&detector, &recognizer} {
		if net.SetPreferableBackend(gocv.NetBackendCUDA) != nil || net.SetPreferableTarget(gocv.NetTargetCUDA) != nil {
			net.SetPreferableBackend(gocv.NetBackendDefault)
			net.SetPreferableTarget(gocv.NetTargetCPU)
		}
	}

	inputW, inputH := 112, 112
	if modelName == "facenet" {
		inputW, inputH = 160, 160
	}

	log.Printf("extractor: loaded %s recognition model", modelName)
	return &DNNExtractor{
		detector:   detector,
		recognizer: recognizer,
		Enabled:    true,
		ModelName:  modelName,
		inputSizeW: inputW,
		inputSizeH: inputH,
	}
}

func (e *DNNExtractor) Close() {
	if e != nil && e.Enabled {
		e.detector.Close()
		e.recognizer.Close()
		e.Enabled = false
	}
}

// ExtractEmbedding reads the image, detects faces and returns the embedding
// of the first detected face. Multi-face images are an accepted
// simplification: the detector's first hit above the confidence threshold
// wins. Returns (nil, nil) when no face is found or the extractor is
// disabled; returns an error only for unreadable images.
func (e *DNNExtractor) ExtractEmbedding(imagePath string) ([]float32, error) {
	if e == nil || !e.Enabled {
		return nil, nil
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image %s", imagePath)
	}
	defer img.Close()

	faceRect, found := e.detectFirstFace(img)
	if !found {
		return nil, nil
	}

	faceRegion := img.Region(faceRect)
	defer faceRegion.Close()

	return e.embedFaceRegion(faceRegion), nil
}

// detectFirstFace runs the SSD detector and returns the first detection
// above the confidence threshold, clamped to the image bounds.
func (e *DNNExtractor) detectFirstFace(img gocv.Mat) (image.Rectangle, bool) {
	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(300, 300), gocv.NewScalar(104.0, 177.0, 123.0, 0), false, false)
	defer blob.Close()

	e.detector.SetInput(blob, "")
	detections := e.detector.Forward("")
	defer detections.Close()

	sizes := detections.Size()
	if len(sizes) != 4 || sizes[2] == 0 {
		return image.Rectangle{}, false
	}
	numDetections := sizes[2]

	// reshape [1,1,N,7] to [N,7] for row access
	data := detections.Reshape(1, numDetections)
	defer data.Close()

	for i := 0; i < numDetections; i++ {
		confidence := data.GetFloatAt(i, 2)
		if confidence < detectionConfThreshold {
			continue
		}
		x1 := int(data.GetFloatAt(i, 3) * imgW)
		y1 := int(data.GetFloatAt(i, 4) * imgH)
		x2 := int(data.GetFloatAt(i, 5) * imgW)
		y2 := int(data.GetFloatAt(i, 6) * imgH)

		rect := image.Rect(x1, y1, x2, y2).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
		if rect.Empty() {
			continue
		}
		return rect, true
	}
	return image.Rectangle{}, false
}

// embedFaceRegion preprocesses a face crop and forwards it through the
// recognition net, returning the L2-normalized embedding.
func (e *DNNExtractor) embedFaceRegion(faceRegion gocv.Mat) []float32 {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(faceRegion, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(e.inputSizeW, e.inputSizeH), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(e.inputSizeW, e.inputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.recognizer.SetInput(blob, "")
	output := e.recognizer.Forward("")
	defer output.Close()

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make([]float32, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return normalizeEmbedding(embedding)
}

// normalizeEmbedding scales the vector to unit L2 length.
func normalizeEmbedding(embedding []float32) []float32 {
	var norm float32
	for _, val := range embedding {
		norm += val * val
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = val / norm
	}
	return normalized
}
