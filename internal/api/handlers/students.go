package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classroom/internal/storage"
	"github.com/your-org/classroom/pkg/dto"
)

type StudentHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
	// EmbedFn extracts a face embedding from image bytes. Set once the
	// API's own vision adapters have loaded.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewStudentHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *StudentHandler {
	return &StudentHandler{db: db, minio: minio}
}

func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.db.CreateStudent(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.StudentResponse{
		ID:        student.ID,
		Name:      student.Name,
		Metadata:  student.Metadata,
		CreatedAt: student.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.db.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.StudentResponse, 0, len(students))
	for _, st := range students {
		count, _ := h.db.CountFaces(c.Request.Context(), st.ID)
		resp = append(resp, dto.StudentResponse{
			ID:             st.ID,
			Name:           st.Name,
			Metadata:       st.Metadata,
			EmbeddingCount: count,
			CreatedAt:      st.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, dto.StudentListResponse{Students: resp, Total: len(resp)})
}

func (h *StudentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	student, err := h.db.GetStudent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	count, _ := h.db.CountFaces(c.Request.Context(), id)

	c.JSON(http.StatusOK, dto.StudentResponse{
		ID:             student.ID,
		Name:           student.Name,
		Metadata:       student.Metadata,
		EmbeddingCount: count,
		CreatedAt:      student.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// AddFace accepts a multipart image upload, extracts an embedding, and
// enrolls it against the student's face catalog.
func (h *StudentHandler) AddFace(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	student, err := h.db.GetStudent(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face embedding model not initialized"})
		return
	}

	embedding, quality, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey := "students/" + studentID.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	se, err := h.db.AddStudentEmbedding(c.Request.Context(), studentID, embedding, quality, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.StudentEmbeddingResponse{
		ID:        se.ID,
		StudentID: se.StudentID,
		Quality:   se.Quality,
		SourceKey: se.SourceKey,
		CreatedAt: se.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *StudentHandler) DeleteFace(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}
	embeddingID, err := uuid.Parse(c.Param("embeddingId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid embedding id"})
		return
	}

	if err := h.db.DeleteStudentEmbedding(c.Request.Context(), studentID, embeddingID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *StudentHandler) ListFaces(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	embeddings, err := h.db.ListStudentEmbeddings(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.StudentEmbeddingResponse, 0, len(embeddings))
	for _, se := range embeddings {
		resp = append(resp, dto.StudentEmbeddingResponse{
			ID:        se.ID,
			StudentID: se.StudentID,
			Quality:   se.Quality,
			SourceKey: se.SourceKey,
			CreatedAt: se.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"faces": resp, "total": len(resp)})
}

// Search performs a face similarity search against enrolled students by
// uploading a photo.
func (h *StudentHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face embedding model not initialized"})
		return
	}

	embedding, _, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	threshold := 0.4
	limit := 5

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			StudentID: m.StudentID,
			Name:      m.Name,
			Score:     m.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
