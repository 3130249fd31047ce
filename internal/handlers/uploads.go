package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxImagesPerUpload = 10

func respondUploadError(c *gin.Context, route string, err error) {
	if errors.Is(err, errUnsupportedMedia) || errors.Is(err, errFileTooLarge) {
		respondWithError(c, http.StatusBadRequest, route, err.Error())
		return
	}
	log.Printf("[%s] upload failed: %v", route, err)
	respondWithError(c, http.StatusInternalServerError, route, "Server Error")
}

// UploadImage stores the "image" field and returns its URL as plain text.
func UploadImage(uploads *UploadStorage) gin.HandlerFunc {
	return uploadSingle("POST /api/upload", "image", imageMedia, uploads)
}

// UploadVideo stores the "video" field and returns its URL as plain text.
func UploadVideo(uploads *UploadStorage) gin.HandlerFunc {
	return uploadSingle("POST /api/upload/video", "video", videoMedia, uploads)
}

func uploadSingle(route, field string, kind mediaKind, uploads *UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handlePanic(c, route)

		file, err := c.FormFile(field)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "No file uploaded")
			return
		}

		url, err := uploads.Save(file, kind)
		if err != nil {
			respondUploadError(c, route, err)
			return
		}

		c.String(http.StatusOK, url)
	}
}

// UploadImages stores up to ten "images" files and returns their URLs.
func UploadImages(uploads *UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/upload/multiple"
		defer handlePanic(c, route)

		form, err := c.MultipartForm()
		if err != nil || len(form.File["images"]) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "No files uploaded")
			return
		}
		files := form.File["images"]
		if len(files) > maxImagesPerUpload {
			respondWithError(c, http.StatusBadRequest, route, "Too many files, max 10")
			return
		}

		urls := make([]string, 0, len(files))
		for _, file := range files {
			url, err := uploads.Save(file, imageMedia)
			if err != nil {
				for _, saved := range urls {
					if delErr := uploads.Delete(saved); delErr != nil {
						log.Printf("[%s] cleanup of %s failed: %v", route, saved, delErr)
					}
				}
				respondUploadError(c, route, err)
				return
			}
			urls = append(urls, url)
		}

		c.JSON(http.StatusOK, urls)
	}
}
