// Package internal holds helpers shared by the asyncredis packages.
package internal

// JumpHash maps a 64-bit key to a bucket in [0, buckets) with Google's Jump
// consistent hash (https://arxiv.org/abs/1406.2294). Growing buckets from n to
// n+1 moves only 1/(n+1) of the keys. It returns 0 when buckets <= 0.
func JumpHash(key uint64, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	bucket, next := int64(-1), int64(0)
	for next < int64(buckets) {
		bucket = next
		key = key*2862933555777941757 + 1
		next = int64(float64(bucket+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(bucket)
}
