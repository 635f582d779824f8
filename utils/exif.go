package utils

import (
	"log"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// ExtractYear reads EXIF data from an image file and returns the year the
// photo was taken, or nil if the file carries no usable EXIF date. Used to
// seed descriptive metadata when ingesting assets found on disk.
func ExtractYear(imagePath string) *int {
	f, err := os.Open(imagePath)
	if err != nil {
		log.Printf("exif: cannot open %s: %v", imagePath, err)
		return nil
	}
	defer f.Close()

	exifData, err := exif.Decode(f)
	if err != nil {
		// most scanned assets have no EXIF block; not worth logging
		return nil
	}

	taken, err := exifData.DateTime()
	if err != nil {
		return nil
	}

	year := taken.Year()
	return &year
}

// DecadeOf returns the decade a year belongs to (1987 -> 1980).
func DecadeOf(year int) int {
	return (year / 10) * 10
}
