package utils

import "github.com/spf13/afero"

// Dependency injection for Afero
type Fs afero.Fs

type File afero.File
