// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// Kind is the cache kind under which indexes are stored.
var Kind = cache.NewKind[*SymbolIndex]("symbol-index")

// ProjectSetKey returns the identity of a project set and root filter.
//
// The key is the SHA256 of the sorted name=dir pairs plus the root, so the
// order projects are listed in does not matter.
func ProjectSetKey(projects []semantic.Project, root string) string {
	parts := make([]string, len(projects))
	for i, p := range projects {
		parts[i] = p.Name + "=" + p.Dir
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\n")))
	h.Write([]byte("\nroot=" + root))
	return hex.EncodeToString(h.Sum(nil))
}

// Cached returns the index for projects from store, building it on first use.
//
// Concurrent callers for the same project set share one build. The index is
// never rebuilt for the same key; callers wanting fresh results must change
// the project set identity or Reset the store.
func Cached(ctx context.Context, store *cache.Store, provider semantic.Provider, projects []semantic.Project, opts ...BuildOption) (*SymbolIndex, error) {
	o := resolveOptions(opts)
	key := ProjectSetKey(projects, o.RootProject)
	return cache.GetOrAdd(ctx, store, Kind, key, func(ctx context.Context) (*SymbolIndex, error) {
		return Build(ctx, provider, projects, opts...)
	})
}
