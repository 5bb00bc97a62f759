package utils

import (
	"fmt"
	"io/ioutil"
	"sync"

	"gopkg.in/yaml.v2"
)

// PrevahCode is one entry of the PREVAH land-cover code list.
type PrevahCode struct {
	Code        int    `yaml:"code" json:"code"`
	Description string `yaml:"description" json:"description"`
}

// TLMMapping maps one SwissTLMRegio category to its PREVAH code.
type TLMMapping struct {
	Category    string `yaml:"category" json:"category"`
	Prevah      int    `yaml:"prevah" json:"prevah"`
	Description string `yaml:"description" json:"description"`
}

// BFSMapping maps one BFS Arealstatistik LC_27 class to its PREVAH code.
type BFSMapping struct {
	LC27        int    `yaml:"lc27" json:"lc27"`
	Description string `yaml:"description" json:"description"`
	Prevah      int    `yaml:"prevah" json:"prevah"`
	PrevahName  string `yaml:"prevah_name" json:"prevah_name"`
}

// LandCoverCatalog holds the PREVAH code list and the category mappings of
// the supported land-use sources.
type LandCoverCatalog struct {
	PrevahCodes []PrevahCode `yaml:"prevah_codes" json:"prevah_codes"`
	TLMToPrevah []TLMMapping `yaml:"tlm_to_prevah" json:"tlm_to_prevah"`
	BFSToPrevah []BFSMapping `yaml:"bfs_lc27_to_prevah" json:"bfs_lc27_to_prevah"`

	codeLookup map[int]bool
}

// LoadLandCoverCatalog parses the land-cover catalog data file.
func LoadLandCoverCatalog(path string) (*LandCoverCatalog, error) {
	src, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Error while reading land-cover catalog %s: %v", path, err)
	}

	catalog := &LandCoverCatalog{}
	if err := yaml.Unmarshal(src, catalog); err != nil {
		return nil, fmt.Errorf("Error while parsing land-cover catalog %s: %v", path, err)
	}
	if len(catalog.PrevahCodes) == 0 {
		return nil, fmt.Errorf("land-cover catalog %s has no PREVAH codes", path)
	}

	catalog.codeLookup = make(map[int]bool)
	for _, entry := range catalog.PrevahCodes {
		catalog.codeLookup[entry.Code] = true
	}
	return catalog, nil
}

// HasPrevahCode reports whether a bare PREVAH code is in the catalog.
func (c *LandCoverCatalog) HasPrevahCode(code int) bool {
	return c.codeLookup[code]
}

// CheckConstant validates a constant land-use value in the 1LLCD form,
// where LL must be a catalogued PREVAH code.
func (c *LandCoverCatalog) CheckConstant(constant int) error {
	if constant < 10000 || constant > 19999 {
		return fmt.Errorf("constant land-use value %d is not in 1LLCD form", constant)
	}
	ll := (constant / 100) % 100
	if !c.HasPrevahCode(ll) {
		return fmt.Errorf("constant land-use value %d refers to unknown PREVAH code %d", constant, ll)
	}
	return nil
}

var (
	catalogOnce sync.Once
	catalog     *LandCoverCatalog
	catalogErr  error
)

// SharedLandCoverCatalog loads the catalog at the given path once per
// process and keeps serving the same copy.
func SharedLandCoverCatalog(path string) (*LandCoverCatalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = LoadLandCoverCatalog(path)
	})
	return catalog, catalogErr
}
