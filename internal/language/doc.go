// Package language normalizes the free-form language labels found in speaker
// metadata tables so that pairing and task names compare equal across
// spellings, codes and BCP 47 tags.
package language
