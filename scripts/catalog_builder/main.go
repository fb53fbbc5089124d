package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// <course_id>_lessons.csv
var lessonFileRe = regexp.MustCompile(`^([A-Za-z0-9-]+)_lessons\.csv$`)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir, out string
	cmd := &cobra.Command{
		Use:   "catalog_builder",
		Short: "Build the static course catalog (CATALOG_FILE) from CSV sheets",
		Long: `Reads courses.csv (id,title,description,price,currency,access,labels) and one
<course_id>_lessons.csv per course (position,id,title,type,video_url,initial_code)
and writes the catalog JSON the server loads from CATALOG_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New("dev")
			if err != nil {
				return err
			}
			defer log.Sync()

			catalog, err := build(log, dir)
			if err != nil {
				return err
			}
			return writeJSON(out, catalog)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "content", "directory with the CSV sheets")
	cmd.Flags().StringVarP(&out, "out", "o", "web/catalog.json", "output file")
	return cmd
}

func build(log *logger.Logger, dir string) ([]models.Course, error) {
	courses, err := readCourses(filepath.Join(dir, "courses.csv"))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Course, len(courses))
	for i := range courses {
		byID[courses[i].ID] = &courses[i]
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := lessonFileRe.FindStringSubmatch(f.Name())
		if len(m) != 2 {
			continue
		}
		course, ok := byID[m[1]]
		if !ok {
			log.Warn("lessons for unknown course, skipping", "file", f.Name())
			continue
		}
		lessons, err := readLessons(filepath.Join(dir, f.Name()), course.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		course.Lessons = lessons
		log.Info("course loaded", "course_id", course.ID, "lessons", len(lessons))
	}

	validate := validator.New()
	for _, c := range courses {
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("course %q: %w", c.ID, err)
		}
	}
	return courses, nil
}

// readSheet returns the rows of a CSV file keyed by the header names.
func readSheet(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readCourses(path string) ([]models.Course, error) {
	rows, err := readSheet(path)
	if err != nil {
		return nil, fmt.Errorf("read courses: %w", err)
	}
	courses := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		price := 0
		if row["price"] != "" {
			if price, err = strconv.Atoi(row["price"]); err != nil {
				return nil, fmt.Errorf("course %q: bad price %q", row["id"], row["price"])
			}
		}
		raw, _ := json.Marshal(row["labels"])
		var labels models.Labels
		if err := json.Unmarshal(raw, &labels); err != nil {
			return nil, err
		}
		courses = append(courses, models.Course{
			ID:          row["id"],
			Title:       row["title"],
			Description: row["description"],
			Price:       price,
			Currency:    row["currency"],
			Access:      models.AccessTier(row["access"]),
			Status:      models.CoursePublished,
			Labels:      labels,
		})
	}
	return courses, nil
}

func readLessons(path, courseID string) ([]models.Lesson, error) {
	rows, err := readSheet(path)
	if err != nil {
		return nil, err
	}
	lessons := make([]models.Lesson, 0, len(rows))
	for _, row := range rows {
		pos, err := strconv.Atoi(row["position"])
		if err != nil {
			return nil, fmt.Errorf("lesson %q: bad position %q", row["id"], row["position"])
		}
		lessons = append(lessons, models.Lesson{
			ID:          row["id"],
			CourseID:    courseID,
			Position:    pos,
			Title:       row["title"],
			Type:        models.LessonType(row["type"]),
			VideoURL:    row["video_url"],
			InitialCode: row["initial_code"],
		})
	}
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
