package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sort"
	"strings"
)

// ABIVersion — версия бинарного контракта динамических плагинов.
// Плагин экспортирует `var ExtractABIVersion = plugin.ABIVersion`
// и `func ExtractPlugins() plugin.Catalog`.
const ABIVersion = 1

// BuiltinSource — имя источника, собранного в бинарник.
const BuiltinSource = "builtin"

// ConnectorConstructor создаёт прототип коннектора для языка.
type ConnectorConstructor func(language string) (SourceConnector, error)

// TaskConstructor создаёт прототип обработчика для языка.
type TaskConstructor func(language string) (TaskProcessor, error)

// Catalog — реализации, которые предоставляет один источник.
type Catalog struct {
	Connectors []ConnectorConstructor
	Tasks      []TaskConstructor
}

// Merge добавляет реализации other в каталог.
func (c *Catalog) Merge(other Catalog) {
	c.Connectors = append(c.Connectors, other.Connectors...)
	c.Tasks = append(c.Tasks, other.Tasks...)
}

// Source — загружаемая единица плагинов.
type Source interface {
	Name() string
	Catalog() (Catalog, error)
}

// StaticSource — источник с фиксированным каталогом (плагины в бинарнике).
type StaticSource struct {
	name    string
	catalog Catalog
}

// NewStaticSource создаёт источник из готового каталога.
func NewStaticSource(name string, catalog Catalog) *StaticSource {
	return &StaticSource{name: name, catalog: catalog}
}

// Name возвращает имя источника.
func (s *StaticSource) Name() string { return s.name }

// Catalog возвращает каталог.
func (s *StaticSource) Catalog() (Catalog, error) { return s.catalog, nil }

// DirSource — каталог с Go-плагинами (*.so).
type DirSource struct {
	dir string
}

// NewDirSource создаёт источник для каталога.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Name возвращает путь каталога.
func (s *DirSource) Name() string { return s.dir }

// Catalog открывает все *.so в каталоге (в алфавитном порядке).
// Ошибка одного файла не мешает загрузке остальных: она возвращается
// вместе с частичным каталогом.
func (s *DirSource) Catalog() (Catalog, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: %s: %v", ErrInvalidSource, s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".so") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		catalog Catalog
		errs    []string
	)
	for _, name := range names {
		c, err := openSharedObject(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		catalog.Merge(c)
	}

	if len(errs) > 0 {
		return catalog, fmt.Errorf("%w: %s", ErrInstantiation, strings.Join(errs, "; "))
	}
	return catalog, nil
}

// openSharedObject загружает один Go-плагин и проверяет версию ABI.
func openSharedObject(path string) (Catalog, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open %s: %w", path, err)
	}

	sym, err := p.Lookup("ExtractABIVersion")
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w: ExtractABIVersion not exported", path, ErrABIMismatch)
	}
	version, ok := sym.(*int)
	if !ok || *version != ABIVersion {
		return Catalog{}, fmt.Errorf("%s: %w: want %d", path, ErrABIMismatch, ABIVersion)
	}

	sym, err = p.Lookup("ExtractPlugins")
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w: ExtractPlugins not exported", path, ErrInstantiation)
	}
	fn, ok := sym.(func() Catalog)
	if !ok {
		return Catalog{}, fmt.Errorf("%s: %w: ExtractPlugins has wrong signature", path, ErrInstantiation)
	}
	return fn(), nil
}
