// Command import-exam loads a complete exam tree from a JSON file into
// PostgreSQL in a single transaction. The exam is created as DRAFT unless
// -publish is given.
//
// Usage:
//
//	import-exam -file exam.json [-publish]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangulab/topik-backend/internal/config"
	"github.com/hangulab/topik-backend/internal/model"
)

type examFile struct {
	Title           string           `json:"title"`
	Year            int              `json:"year"`
	TopikLevel      model.TopikLevel `json:"topik_level"`
	Level           *string          `json:"level"`
	DurationMinutes int              `json:"duration_minutes"`
	Sections        []sectionFile    `json:"sections"`
}

type sectionFile struct {
	Type            model.SectionType `json:"type"`
	DurationMinutes *int              `json:"duration_minutes"`
	MaxScore        *int              `json:"max_score"`
	Questions       []questionFile    `json:"questions"`
}

type questionFile struct {
	Type              model.QuestionType `json:"type"`
	Content           string             `json:"content"`
	AudioURL          *string            `json:"audio_url"`
	ListeningScript   *string            `json:"listening_script"`
	CorrectTextAnswer *string            `json:"correct_text_answer"`
	ScoreWeight       int                `json:"score_weight"`
	Explanation       *string            `json:"explanation"`
	Choices           []choiceFile       `json:"choices"`
}

type choiceFile struct {
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

func main() {
	var (
		filePath string
		publish  bool
	)
	flag.StringVar(&filePath, "file", "", "Path to the exam JSON file")
	flag.BoolVar(&publish, "publish", false, "Publish the exam immediately")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var exam examFile
	raw, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("Read file: %v", err)
	}
	if err := json.Unmarshal(raw, &exam); err != nil {
		log.Fatalf("Parse file: %v", err)
	}
	if err := validate(&exam); err != nil {
		log.Fatalf("Invalid exam: %v", err)
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	status := model.ExamStatusDraft
	if publish {
		status = model.ExamStatusPublished
	}

	examID, total, err := importExam(ctx, pool, &exam, status)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	fmt.Printf("Imported %q (%s): %d questions, status %s\n", exam.Title, examID, total, status)
}

func validate(exam *examFile) error {
	if exam.Title == "" {
		return fmt.Errorf("title is required")
	}
	if exam.TopikLevel != model.TopikLevelI && exam.TopikLevel != model.TopikLevelII {
		return fmt.Errorf("topik_level must be TOPIK_I or TOPIK_II")
	}
	if exam.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if len(exam.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}

	for si, s := range exam.Sections {
		for qi, q := range s.Questions {
			if q.ScoreWeight <= 0 {
				return fmt.Errorf("section %d question %d: score_weight must be positive", si, qi)
			}
			switch q.Type {
			case model.QuestionTypeMCQ:
				correct := 0
				for _, c := range q.Choices {
					if c.IsCorrect {
						correct++
					}
				}
				if len(q.Choices) < 2 || correct != 1 {
					return fmt.Errorf("section %d question %d: MCQ needs >=2 choices with exactly one correct", si, qi)
				}
			case model.QuestionTypeShortText:
				if q.CorrectTextAnswer == nil || *q.CorrectTextAnswer == "" {
					return fmt.Errorf("section %d question %d: SHORT_TEXT needs correct_text_answer", si, qi)
				}
			case model.QuestionTypeEssay:
				// No answer key; graded asynchronously.
			default:
				return fmt.Errorf("section %d question %d: unknown type %q", si, qi, q.Type)
			}
		}
	}
	return nil
}

// importExam writes the whole tree in one transaction; a failure anywhere
// leaves no partial exam behind.
func importExam(ctx context.Context, pool *pgxpool.Pool, exam *examFile, status model.ExamStatus) (string, int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, s := range exam.Sections {
		total += len(s.Questions)
	}

	var examID string
	err = tx.QueryRow(ctx,
		`INSERT INTO topik_exams (title, year, topik_level, level, duration_minutes, total_questions, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		exam.Title, exam.Year, exam.TopikLevel, exam.Level, exam.DurationMinutes, total, status,
	).Scan(&examID)
	if err != nil {
		return "", 0, fmt.Errorf("insert exam: %w", err)
	}

	for si, s := range exam.Sections {
		var sectionID string
		err = tx.QueryRow(ctx,
			`INSERT INTO topik_sections (exam_id, type, order_index, duration_minutes, max_score)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			examID, s.Type, si, s.DurationMinutes, s.MaxScore,
		).Scan(&sectionID)
		if err != nil {
			return "", 0, fmt.Errorf("insert section %d: %w", si, err)
		}

		for qi, q := range s.Questions {
			var questionID string
			err = tx.QueryRow(ctx,
				`INSERT INTO topik_questions
				   (section_id, question_type, order_index, content, audio_url, listening_script, correct_text_answer, score_weight, explanation)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 RETURNING id`,
				sectionID, q.Type, qi, q.Content, q.AudioURL, q.ListeningScript, q.CorrectTextAnswer, q.ScoreWeight, q.Explanation,
			).Scan(&questionID)
			if err != nil {
				return "", 0, fmt.Errorf("insert question %d/%d: %w", si, qi, err)
			}

			if len(q.Choices) > 0 {
				rows := make([][]any, 0, len(q.Choices))
				for ci, c := range q.Choices {
					rows = append(rows, []any{questionID, ci, c.Content, c.IsCorrect})
				}
				_, err = tx.CopyFrom(ctx,
					pgx.Identifier{"topik_choices"},
					[]string{"question_id", "order_index", "content", "is_correct"},
					pgx.CopyFromRows(rows),
				)
				if err != nil {
					return "", 0, fmt.Errorf("insert choices %d/%d: %w", si, qi, err)
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, err
	}
	return examID, total, nil
}
