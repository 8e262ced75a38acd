// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*Package interval implements interval-union operations in a manner optimized
  for sets of genomic coordinates represented by BED files or region strings.
  Overlapping and touching intervals are merged, not tracked separately.
  Every position is assumed to fit in a PosType (int32), since that's what
  BAM files are limited to.
*/
package interval
