package service

import (
	"bufio"
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/policy"
	"sage/internal/store"
)

// FileMatch 是文件名检索的一条命中。
type FileMatch struct {
	Path string `json:"path"`
}

// GrepLine 是内容检索的一条命中行。
type GrepLine struct {
	Path    string `json:"path"`
	LineNum int    `json:"line_num"`
	Line    string `json:"line"`
}

type RepositoryService interface {
	Create(ctx context.Context, name, gitURL string) (*store.GitRepository, error)
	Update(ctx context.Context, id int64, name, gitURL string) error
	Delete(ctx context.Context, id int64) error
	// SearchFiles 在仓库本地检出目录里按名称模糊匹配文件。
	SearchFiles(ctx context.Context, principal auth.Principal, repoID int64, pattern string, limit int) ([]FileMatch, error)
	// Grep 在仓库本地检出目录里按正则检索内容。
	Grep(ctx context.Context, principal auth.Principal, repoID int64, query string, limit int) ([]GrepLine, error)
}

type repositoryService struct {
	store    *store.Store
	policy   *policy.AccessPolicy
	repoRoot string
}

func newRepositoryService(st *store.Store, pol *policy.AccessPolicy, repoRoot string) *repositoryService {
	return &repositoryService{store: st, policy: pol, repoRoot: repoRoot}
}

func (s *repositoryService) Create(ctx context.Context, name, gitURL string) (*store.GitRepository, error) {
	if err := validateRepo(name, gitURL); err != nil {
		return nil, err
	}
	id, err := s.store.CreateGitRepository(ctx, name, gitURL)
	if err != nil {
		return nil, err
	}
	return s.store.GetGitRepository(ctx, id)
}

func (s *repositoryService) Update(ctx context.Context, id int64, name, gitURL string) error {
	if err := validateRepo(name, gitURL); err != nil {
		return err
	}
	return s.store.UpdateGitRepository(ctx, id, name, gitURL)
}

func (s *repositoryService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteGitRepository(ctx, id)
}

var repoNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

func validateRepo(name, gitURL string) error {
	var v apierr.Validator
	if !repoNameRe.MatchString(name) {
		v.Fail("name", "仓库名只允许字母、数字与 ._-")
	}
	if u, err := url.Parse(gitURL); err != nil || u.Scheme == "" {
		v.Fail("gitUrl", "仓库地址不合法")
	}
	return v.Err()
}

// sourceID 与授权表对齐：以仓库名标识来源。
func (s *repositoryService) resolveReadable(ctx context.Context, principal auth.Principal, repoID int64) (*store.GitRepository, error) {
	repo, err := s.store.GetGitRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckReadSource(ctx, principal, repo.Name); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *repositoryService) SearchFiles(ctx context.Context, principal auth.Principal, repoID int64, pattern string, limit int) ([]FileMatch, error) {
	repo, err := s.resolveReadable(ctx, principal, repoID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "pattern", Message: "检索词不能为空"})
	}

	root := filepath.Join(s.repoRoot, repo.Name)
	var out []FileMatch
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return fs.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if strings.Contains(strings.ToLower(rel), pattern) {
			out = append(out, FileMatch{Path: filepath.ToSlash(rel)})
			if len(out) >= limit {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func (s *repositoryService) Grep(ctx context.Context, principal auth.Principal, repoID int64, query string, limit int) ([]GrepLine, error) {
	repo, err := s.resolveReadable(ctx, principal, repoID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	re, err := regexp.Compile(query)
	if err != nil {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "query", Message: "正则表达式不合法"})
	}

	root := filepath.Join(s.repoRoot, repo.Name)
	var out []GrepLine
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return fs.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > 1<<20 {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		matches, stop := grepFile(path, filepath.ToSlash(rel), re, limit-len(out))
		out = append(out, matches...)
		if stop || len(out) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func grepFile(path, rel string, re *regexp.Regexp, budget int) ([]GrepLine, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var out []GrepLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 512*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		// 粗略跳过二进制文件。
		if strings.ContainsRune(line, '\x00') {
			return out, false
		}
		if re.MatchString(line) {
			out = append(out, GrepLine{Path: rel, LineNum: lineNum, Line: line})
			if len(out) >= budget {
				return out, true
			}
		}
	}
	return out, false
}
