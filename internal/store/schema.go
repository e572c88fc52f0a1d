package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  is_published BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  label TEXT NOT NULL DEFAULT '',
  qtype TEXT NOT NULL CHECK (qtype IN ('single', 'multiple', 'text', 'number')),
  required BOOLEAN NOT NULL DEFAULT TRUE,
  "order" INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  text TEXT NOT NULL,
  correct BOOLEAN NOT NULL DEFAULT FALSE,
  "order" INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  structure_code TEXT,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  option_id TEXT REFERENCES options(id) ON DELETE SET NULL,
  value_text TEXT,
  value_number DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS questions_quiz_id_idx ON questions (quiz_id);
CREATE INDEX IF NOT EXISTS options_question_id_idx ON options (question_id);
CREATE INDEX IF NOT EXISTS submissions_quiz_id_idx ON submissions (quiz_id, structure_code);
CREATE INDEX IF NOT EXISTS answers_submission_id_idx ON answers (submission_id);
CREATE INDEX IF NOT EXISTS answers_question_id_idx ON answers (question_id);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  is_published BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  label TEXT NOT NULL DEFAULT '',
  qtype TEXT NOT NULL CHECK (qtype IN ('single', 'multiple', 'text', 'number')),
  required BOOLEAN NOT NULL DEFAULT 1,
  "order" INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  text TEXT NOT NULL,
  correct BOOLEAN NOT NULL DEFAULT 0,
  "order" INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  structure_code TEXT,
  created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  option_id TEXT REFERENCES options(id) ON DELETE SET NULL,
  value_text TEXT,
  value_number REAL,
  created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS questions_quiz_id_idx ON questions (quiz_id);
CREATE INDEX IF NOT EXISTS options_question_id_idx ON options (question_id);
CREATE INDEX IF NOT EXISTS submissions_quiz_id_idx ON submissions (quiz_id, structure_code);
CREATE INDEX IF NOT EXISTS answers_submission_id_idx ON answers (submission_id);
CREATE INDEX IF NOT EXISTS answers_question_id_idx ON answers (question_id);
`

// The analytics views are pre-aggregations the aggregation pipeline reads. Their bodies are
// plain SQL shared by both dialects.
const (
	viewOptionCounts = `
SELECT q.quiz_id, s.structure_code, q.id AS question_id, q.label AS question_label,
       o.id AS option_id, o.text AS option_text, o."order" AS option_order, COUNT(*) AS option_count
FROM answers a
JOIN submissions s ON s.id = a.submission_id
JOIN questions q ON q.id = a.question_id
JOIN options o ON o.id = a.option_id
WHERE q.qtype IN ('single', 'multiple')
GROUP BY q.quiz_id, s.structure_code, q.id, q.label, o.id, o.text, o."order"`

	viewNumericStats = `
SELECT q.quiz_id, s.structure_code, q.id AS question_id, q.label AS question_label,
       COUNT(a.value_number) AS n,
       AVG(a.value_number) AS avg,
       MIN(a.value_number) AS min,
       MAX(a.value_number) AS max,
       SUM(a.value_number) AS total
FROM questions q
LEFT JOIN answers a ON a.question_id = q.id AND a.value_number IS NOT NULL
LEFT JOIN submissions s ON s.id = a.submission_id
WHERE q.qtype = 'number'
GROUP BY q.quiz_id, s.structure_code, q.id, q.label`

	viewTextLatest = `
SELECT q.quiz_id, s.structure_code, q.id AS question_id, q.label AS question_label,
       a.value_text, a.created_at
FROM answers a
JOIN submissions s ON s.id = a.submission_id
JOIN questions q ON q.id = a.question_id
WHERE q.qtype = 'text' AND a.value_text IS NOT NULL`

	// A gradable question counts as correct when the submission picked at least one option,
	// picked no incorrect option and did not miss a correct one.
	viewQuizScores = `
SELECT t.quiz_id, t.structure_code, t.submission_id, t.user_id, t.created_at,
       t.gradable_count, t.correct_count,
       CASE WHEN t.gradable_count = 0 THEN NULL
            ELSE CAST(ROUND(100.0 * t.correct_count / t.gradable_count, 2) AS DOUBLE PRECISION)
       END AS score_pct
FROM (
  SELECT s.quiz_id, s.structure_code, s.id AS submission_id, s.user_id, s.created_at,
    (SELECT COUNT(*) FROM questions q
      WHERE q.quiz_id = s.quiz_id AND q.qtype IN ('single', 'multiple')) AS gradable_count,
    (SELECT COUNT(*) FROM questions q
      WHERE q.quiz_id = s.quiz_id AND q.qtype IN ('single', 'multiple')
        AND EXISTS (SELECT 1 FROM answers a
                    WHERE a.submission_id = s.id AND a.question_id = q.id AND a.option_id IS NOT NULL)
        AND NOT EXISTS (SELECT 1 FROM answers a JOIN options o ON o.id = a.option_id
                        WHERE a.submission_id = s.id AND a.question_id = q.id AND NOT o.correct)
        AND NOT EXISTS (SELECT 1 FROM options o
                        WHERE o.question_id = q.id AND o.correct
                          AND NOT EXISTS (SELECT 1 FROM answers a
                                          WHERE a.submission_id = s.id AND a.option_id = o.id))
    ) AS correct_count
  FROM submissions s
) t`
)

var (
	viewsPostgres = createViews("CREATE OR REPLACE VIEW")
	viewsSQLite   = createViews("CREATE VIEW IF NOT EXISTS")
)

func createViews(create string) string {
	views := []struct{ name, body string }{
		{ViewOptionCounts, viewOptionCounts},
		{ViewNumericStats, viewNumericStats},
		{ViewTextLatest, viewTextLatest},
		{ViewQuizScores, viewQuizScores},
	}

	var s string
	for _, v := range views {
		s += create + " " + v.name + " AS" + v.body + ";\n"
	}
	return s
}

// Table and view names.
const (
	TableQuizzes     = "quizzes"
	TableQuestions   = "questions"
	TableOptions     = "options"
	TableSubmissions = "submissions"
	TableAnswers     = "answers"

	ViewOptionCounts = "analytics_option_counts"
	ViewNumericStats = "analytics_numeric_stats"
	ViewTextLatest   = "analytics_text_latest"
	ViewQuizScores   = "analytics_quiz_scores"
)
