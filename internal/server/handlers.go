package server

import (
	"net/http"
	"strconv"
	"strings"

	"column-indexer/internal/model"
	"column-indexer/internal/outline"
	"column-indexer/internal/page"

	"github.com/gin-gonic/gin"
)

type outlineRequest struct {
	Headings []model.HeadingRecord `json:"headings" binding:"dive"`
}

type pageResponse struct {
	page.Page
	Outline outline.Forest `json:"outline"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "refining": s.hub.Pending()})
}

func (s *Server) articles(c *gin.Context) {
	key, ok := columnKey(c.Param("owner"), c.Param("column"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "column must be numeric"})
		return
	}
	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		count = n
	}
	res := s.hub.Get(c.Request.Context(), key, count, nil)
	if res.Articles == nil {
		res.Articles = model.ArticleIndex{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) outline(c *gin.Context) {
	var req outlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outline": buildForest(req.Headings)})
}

func (s *Server) page(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxPageBytes)
	p, err := page.Extract(body, c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pageResponse{Page: p, Outline: buildForest(p.Headings)})
}

func columnKey(owner, column string) (model.ColumnKey, bool) {
	owner = strings.TrimSpace(owner)
	column = strings.TrimSpace(column)
	if owner == "" || column == "" {
		return model.ColumnKey{}, false
	}
	if _, err := strconv.ParseUint(column, 10, 64); err != nil {
		return model.ColumnKey{}, false
	}
	return model.ColumnKey{ColumnID: column, Owner: owner}, true
}

func buildForest(headings []model.HeadingRecord) outline.Forest {
	f := outline.Build(headings)
	if f == nil {
		return outline.Forest{}
	}
	return f
}
