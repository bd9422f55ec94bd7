/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage keeps a local library of template documents.
// Each template is a JSON file under <library>/templates written transactionally, with
// timestamped backups of replaced versions in <library>/backups. A disposable SQLite
// index in <library>/.rdx serves listing, search and crash autosaves and can always be
// rebuilt from the JSON files.
package storage
