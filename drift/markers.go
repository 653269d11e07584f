package drift

// languageIndicators maps root-level files to the language they imply.
var languageIndicators = map[string]string{
	"go.mod":              "go",
	"Cargo.toml":          "rust",
	"Cargo.lock":          "rust",
	"rust-toolchain.toml": "rust",
	"rust-toolchain":      "rust",
	"pyproject.toml":      "python",
	"requirements.txt":    "python",
	"setup.py":            "python",
	"Pipfile":             "python",
	"poetry.lock":         "python",
	".python-version":     "python",
	"package.json":        "javascript",
	"package-lock.json":   "javascript",
	"pnpm-lock.yaml":      "javascript",
	"yarn.lock":           "javascript",
	".nvmrc":              "javascript",
	"tsconfig.json":       "typescript",
	"pom.xml":             "java",
	"build.gradle":        "java",
	"Gemfile":             "ruby",
}

// languageExtensions is the fallback when no indicator file exists.
var languageExtensions = map[string]string{
	".go":  "go",
	".rs":  "rust",
	".py":  "python",
	".js":  "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// skipDirs are never walked.
var skipDirs = map[string]bool{
	".git":         true,
	".phaseflow":   true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// pathRule emits a marker when a directory or file with the given name
// exists anywhere in the walked tree.
type pathRule struct {
	name   string // base name of the directory or file
	dir    bool
	marker string
}

// depRule emits a marker when a dependency name contains substr.
type depRule struct {
	substr string
	marker string
}

var architecturePaths = []pathRule{
	{name: "cmd", dir: true, marker: "cmd-layout"},
	{name: "internal", dir: true, marker: "internal-packages"},
	{name: "pkg", dir: true, marker: "pkg-layout"},
	{name: "migrations", dir: true, marker: "sql-migrations"},
	{name: "proto", dir: true, marker: "protobuf-api"},
	{name: "Dockerfile", marker: "containerized"},
	{name: "docker-compose.yml", marker: "compose-services"},
	{name: "docker-compose.yaml", marker: "compose-services"},
	{name: "charts", dir: true, marker: "helm"},
	{name: "terraform", dir: true, marker: "infrastructure-as-code"},
	{name: "components", dir: true, marker: "component-ui"},
}

var architectureDeps = []depRule{
	{substr: "google.golang.org/grpc", marker: "grpc"},
	{substr: "labstack/echo", marker: "http-server"},
	{substr: "gin-gonic/gin", marker: "http-server"},
	{substr: "go-chi/chi", marker: "http-server"},
	{substr: "express", marker: "http-server"},
	{substr: "fastapi", marker: "http-server"},
	{substr: "flask", marker: "http-server"},
	{substr: "actix-web", marker: "http-server"},
	{substr: "axum", marker: "http-server"},
	{substr: "nats", marker: "messaging"},
	{substr: "kafka", marker: "messaging"},
	{substr: "amqp", marker: "messaging"},
	{substr: "sqlite", marker: "embedded-database"},
	{substr: "pgx", marker: "postgres"},
	{substr: "lib/pq", marker: "postgres"},
	{substr: "psycopg", marker: "postgres"},
	{substr: "react", marker: "react"},
	{substr: "graphql", marker: "graphql"},
}

var securityPaths = []pathRule{
	{name: "auth", dir: true, marker: "auth-module"},
	{name: ".gitleaks.toml", marker: "secret-scanning"},
	{name: "SECURITY.md", marker: "security-policy"},
	{name: "policies", dir: true, marker: "policy-files"},
}

var securityDeps = []depRule{
	{substr: "jwt", marker: "jwt"},
	{substr: "oauth2", marker: "oauth"},
	{substr: "oidc", marker: "oidc"},
	{substr: "golang.org/x/crypto", marker: "crypto"},
	{substr: "bcrypt", marker: "password-hashing"},
	{substr: "argon2", marker: "password-hashing"},
	{substr: "casbin", marker: "rbac"},
	{substr: "passport", marker: "auth-middleware"},
	{substr: "gitleaks", marker: "secret-scanning"},
}

var testingPaths = []pathRule{
	{name: "e2e", dir: true, marker: "e2e-tests"},
	{name: "integration", dir: true, marker: "integration-tests"},
	{name: "integrationtest", dir: true, marker: "integration-tests"},
	{name: "testdata", dir: true, marker: "fixtures"},
	{name: "conftest.py", marker: "pytest"},
	{name: "pytest.ini", marker: "pytest"},
	{name: "jest.config.js", marker: "jest"},
	{name: "vitest.config.ts", marker: "vitest"},
	{name: "playwright.config.ts", marker: "playwright"},
}

var testingDeps = []depRule{
	{substr: "testify", marker: "testify"},
	{substr: "gomock", marker: "mocks"},
	{substr: "testcontainers", marker: "testcontainers"},
	{substr: "pytest", marker: "pytest"},
	{substr: "jest", marker: "jest"},
	{substr: "vitest", marker: "vitest"},
}

// testFileSuffixes mark the presence of a unit-test convention.
var testFileSuffixes = map[string]string{
	"_test.go":  "go-test",
	".test.ts":  "js-unit-tests",
	".test.js":  "js-unit-tests",
	".spec.ts":  "js-unit-tests",
	"_test.py":  "pytest",
	"_tests.rs": "cargo-test",
}

var ciPaths = []pathRule{
	{name: "workflows", dir: true, marker: "github-actions"},
	{name: ".gitlab-ci.yml", marker: "gitlab-ci"},
	{name: "Jenkinsfile", marker: "jenkins"},
	{name: ".circleci", dir: true, marker: "circleci"},
}

// frameworkDeps names frameworks recorded for information only.
var frameworkDeps = map[string]string{
	"github.com/spf13/cobra":      "cobra",
	"github.com/labstack/echo/v4": "echo",
	"github.com/gin-gonic/gin":    "gin",
	"react":                       "react",
	"next":                        "nextjs",
	"vue":                         "vue",
	"django":                      "django",
	"fastapi":                     "fastapi",
	"flask":                       "flask",
	"tokio":                       "tokio",
}
